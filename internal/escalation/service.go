package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aegis/internal/ledger"
	"aegis/internal/liveness"
	"aegis/internal/notify"
	"aegis/internal/platform/metrics"
	"aegis/pkg/domain"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/requestcontext"
)

// AuditRecorder appends escalation transitions to the audit ledger.
type AuditRecorder interface {
	Record(ctx context.Context, rec ledger.Record) (*ledger.Entry, error)
}

// AlertSink accepts advocate alerts for asynchronous delivery.
type AlertSink interface {
	Enqueue(alert notify.Alert)
}

// TriggerParams describes the pending action behind a new escalation.
type TriggerParams struct {
	GrantID    domain.GrantID
	SeniorID   string
	AdvocateID string
	Reason     domain.TriggerReason
	Service    string
	Amount     float64
	Detail     string
}

// Service drives the break-glass state machine. Every transition is a
// version-guarded compare-and-swap followed by an audit entry, so racing
// advocates resolve to exactly one state change and a complete trail.
type Service struct {
	store        Store
	verifier     liveness.Verifier
	recorder     AuditRecorder
	alerts       AlertSink
	logger       *slog.Logger
	metrics      *metrics.Metrics
	codeValidity time.Duration
}

// Option configures the service.
type Option func(*Service)

// WithCodeValidity overrides the verification window.
func WithCodeValidity(d time.Duration) Option {
	return func(s *Service) { s.codeValidity = d }
}

func NewService(store Store, verifier liveness.Verifier, recorder AuditRecorder,
	alerts AlertSink, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		store:        store,
		verifier:     verifier,
		recorder:     recorder,
		alerts:       alerts,
		logger:       logger,
		metrics:      m,
		codeValidity: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger opens an escalation for a pending action. If a non-terminal
// escalation already exists for the same action, that event is returned
// instead of creating a second one.
func (s *Service) Trigger(ctx context.Context, p TriggerParams) (*Event, error) {
	fingerprint := BuildFingerprint(p.GrantID, p.SeniorID, p.Service, p.Amount)
	if existing, err := s.store.FindActiveByFingerprint(ctx, fingerprint); err == nil {
		return existing, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	e := &Event{
		ID:               domain.NewEventID(),
		GrantID:          p.GrantID,
		SeniorID:         p.SeniorID,
		AdvocateID:       p.AdvocateID,
		TriggerReason:    p.Reason,
		Service:          p.Service,
		Amount:           p.Amount,
		Detail:           p.Detail,
		Status:           StatusPending,
		Code:             code,
		CodeExpiresAt:    now.Add(s.codeValidity),
		LivenessRequired: p.Reason == domain.TriggerCriticalRiskSignal,
		CreatedAt:        now,
		Fingerprint:      fingerprint,
	}

	if err := s.store.Create(ctx, e); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost the creation race; the winner's event stands.
			return s.store.FindActiveByFingerprint(ctx, fingerprint)
		}
		return nil, fmt.Errorf("create escalation: %w", err)
	}

	s.metrics.EscalationsTotal.WithLabelValues(string(p.Reason)).Inc()
	s.alerts.Enqueue(notify.Alert{
		EventID:    e.ID,
		GrantID:    e.GrantID,
		AdvocateID: e.AdvocateID,
		SeniorID:   e.SeniorID,
		Reason:     e.TriggerReason,
		Service:    e.Service,
		Amount:     e.Amount,
		Code:       e.Code,
		CreatedAt:  e.CreatedAt,
	})
	return e, nil
}

// VerifyCode consumes the verification code. On a PENDING event with the
// right code it advances to CODE_VERIFIED, and straight on to APPROVED when
// no liveness check is required. A duplicate submission against an already
// advanced event is a no-op returning the current state.
func (s *Service) VerifyCode(ctx context.Context, id domain.EventID, code, verifiedBy string) (*Event, error) {
	e, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	if e.Status.Terminal() {
		if e.Status == StatusApproved {
			return e, nil
		}
		return e, dErrors.New(dErrors.CodeCodeInvalid, "escalation already resolved")
	}
	if e.CodeExpired(now) {
		e, _ = s.expire(ctx, e)
		return e, dErrors.New(dErrors.CodeCodeInvalid, "verification window has elapsed")
	}
	if e.Status != StatusPending {
		// Code already verified; duplicate submission.
		return e, nil
	}
	if e.CodeConsumed || code != e.Code {
		return e, dErrors.New(dErrors.CodeCodeInvalid, "verification code does not match")
	}

	next := *e
	next.Status = StatusCodeVerified
	next.CodeConsumed = true
	if err := s.transition(ctx, &next, e); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Another submission won the race; report its result.
			return s.get(ctx, id)
		}
		return nil, fmt.Errorf("verify code: %w", err)
	}
	s.audit(ctx, &next, ledger.ActionCodeVerified, verifiedBy, "verification code accepted")

	if next.LivenessRequired {
		return &next, nil
	}
	return s.approve(ctx, &next, verifiedBy, "code verified, no liveness required")
}

// VerifyLiveness runs the biometric check for critical escalations. It is
// only legal on CODE_VERIFIED events.
func (s *Service) VerifyLiveness(ctx context.Context, id domain.EventID, method, data, verifiedBy string) (*Event, error) {
	e, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	if e.Status == StatusApproved {
		return e, nil
	}
	if e.Status.Terminal() {
		return e, dErrors.New(dErrors.CodeConflict, "escalation already resolved")
	}
	if e.CodeExpired(now) {
		e, _ = s.expire(ctx, e)
		return e, dErrors.New(dErrors.CodeCodeInvalid, "verification window has elapsed")
	}
	if e.Status != StatusCodeVerified {
		return e, dErrors.New(dErrors.CodeConflict, "verification code must be accepted first")
	}
	if !e.LivenessRequired {
		return e, dErrors.New(dErrors.CodeConflict, "escalation does not require a liveness check")
	}

	result, err := s.verifier.Verify(ctx, method, data)
	if err != nil {
		return nil, fmt.Errorf("liveness check: %w", err)
	}
	if !result.Verified {
		return e, dErrors.New(dErrors.CodeForbidden, "liveness check failed")
	}

	next := *e
	next.Status = StatusLivenessVerified
	next.Liveness = &result
	if err := s.transition(ctx, &next, e); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return s.get(ctx, id)
		}
		return nil, fmt.Errorf("verify liveness: %w", err)
	}
	s.audit(ctx, &next, ledger.ActionLivenessVerified, verifiedBy,
		fmt.Sprintf("liveness verified via %s (confidence %.2f)", result.Method, result.Confidence))

	return s.approve(ctx, &next, verifiedBy, "code and liveness verified")
}

// Deny settles an escalation negatively. Denying an already terminal event
// is an idempotent no-op.
func (s *Service) Deny(ctx context.Context, id domain.EventID, deniedBy, reason string) (*Event, error) {
	e, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		return e, nil
	}

	now := requestcontext.Now(ctx)
	next := *e
	next.Status = StatusDenied
	next.ResolvedBy = deniedBy
	next.ResolutionReason = reason
	next.ResolvedAt = &now
	if err := s.transition(ctx, &next, e); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return s.get(ctx, id)
		}
		return nil, fmt.Errorf("deny escalation: %w", err)
	}
	s.audit(ctx, &next, ledger.ActionEscalationDenied, deniedBy, reason)
	return &next, nil
}

// Get resolves one event, applying the lazy expiry check.
func (s *Service) Get(ctx context.Context, id domain.EventID) (*Event, error) {
	e, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.Status.Terminal() && e.CodeExpired(requestcontext.Now(ctx)) {
		return s.expire(ctx, e)
	}
	return e, nil
}

// ListPending returns an advocate's open escalations.
func (s *Service) ListPending(ctx context.Context, advocateID string) ([]*Event, error) {
	if advocateID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "advocate_id is required")
	}
	return s.store.ListPending(ctx, advocateID)
}

// ExpireOverdue settles every event whose verification window has elapsed.
// Returns the number of events expired.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.store.ListOverdue(ctx, requestcontext.Now(ctx))
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, e := range overdue {
		if _, err := s.expire(ctx, e); err == nil {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) get(ctx context.Context, id domain.EventID) (*Event, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "escalation not found")
		}
		return nil, err
	}
	return e, nil
}

func (s *Service) expire(ctx context.Context, e *Event) (*Event, error) {
	now := requestcontext.Now(ctx)
	next := *e
	next.Status = StatusExpired
	next.ResolutionReason = "verification window elapsed"
	next.ResolvedAt = &now
	if err := s.transition(ctx, &next, e); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return s.get(ctx, e.ID)
		}
		return nil, fmt.Errorf("expire escalation: %w", err)
	}
	s.audit(ctx, &next, ledger.ActionEscalationExpired, "system", "verification window elapsed")
	return &next, nil
}

func (s *Service) approve(ctx context.Context, e *Event, approvedBy, reason string) (*Event, error) {
	now := requestcontext.Now(ctx)
	next := *e
	next.Status = StatusApproved
	next.ResolvedBy = approvedBy
	next.ResolutionReason = reason
	next.ResolvedAt = &now
	if err := s.transition(ctx, &next, e); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return s.get(ctx, e.ID)
		}
		return nil, fmt.Errorf("approve escalation: %w", err)
	}
	s.audit(ctx, &next, ledger.ActionEscalationApproved, approvedBy, reason)
	return &next, nil
}

// transition commits the move from e to next via the version CAS. The
// transitions table is the single authority on legal moves; every status
// change in this service goes through here.
func (s *Service) transition(ctx context.Context, next, from *Event) error {
	if !from.Status.CanTransition(next.Status) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("illegal escalation transition %s -> %s", from.Status, next.Status))
	}
	return s.store.Update(ctx, next, from.Version)
}

// audit records a transition. Failures are logged, not returned: the state
// change has already committed and the transition entries are supplementary
// to the decision entry written on the trigger path.
func (s *Service) audit(ctx context.Context, e *Event, action, actor, reason string) {
	_, err := s.recorder.Record(ctx, ledger.Record{
		ChainID:  e.ChainID(),
		Actor:    actor,
		Action:   action,
		Decision: string(e.Status),
		Reason:   reason,
		Snapshot: map[string]any{
			"event_id":       e.ID.String(),
			"trigger_reason": e.TriggerReason,
			"service":        e.Service,
			"amount":         e.Amount,
		},
	})
	if err != nil {
		s.logger.Error("audit escalation transition",
			slog.String("event_id", e.ID.String()),
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}
