package decision

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"aegis/internal/escalation"
	"aegis/internal/grant"
	"aegis/internal/ledger"
	"aegis/internal/notify"
	"aegis/internal/platform/metrics"
	"aegis/internal/policy"
	"aegis/internal/signal"
	"aegis/pkg/domain"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/requestcontext"
)

// GrantReader resolves grants for policy evaluation.
type GrantReader interface {
	Get(ctx context.Context, id domain.GrantID) (*grant.Grant, error)
}

// Escalator opens break-glass escalations.
type Escalator interface {
	Trigger(ctx context.Context, p escalation.TriggerParams) (*escalation.Event, error)
}

// AuditRecorder appends the decision entry.
type AuditRecorder interface {
	Record(ctx context.Context, rec ledger.Record) (*ledger.Entry, error)
}

// AlertSink accepts advocate alerts for asynchronous delivery.
type AlertSink interface {
	Enqueue(alert notify.Alert)
}

// Service is the decision facade. The ledger write is synchronous and
// mandatory: if the entry cannot be appended the decision fails closed to
// BLOCKED, whatever the evaluation said.
type Service struct {
	grants    GrantReader
	callScore signal.Scorer
	txnScore  signal.Scorer
	escalator Escalator
	recorder  AuditRecorder
	alerts    AlertSink
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

func NewService(grants GrantReader, callScore, txnScore signal.Scorer, escalator Escalator,
	recorder AuditRecorder, alerts AlertSink, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		grants:    grants,
		callScore: callScore,
		txnScore:  txnScore,
		escalator: escalator,
		recorder:  recorder,
		alerts:    alerts,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("aegis/internal/decision"),
	}
}

// ValidateAction decides whether an agent may perform an action under a
// grant. Validation errors reject the request before any evaluation and are
// never audited; everything past validation lands in the ledger.
func (s *Service) ValidateAction(ctx context.Context, req ActionRequest) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "decision.validate_action")
	defer span.End()
	defer s.observe(time.Now())

	if req.GrantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "poa_id is required")
	}
	if req.Service == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "service_name is required")
	}
	if req.Amount < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "amount must not be negative")
	}
	switch req.Action {
	case "", ActionKindPayment, ActionKindDataAccess:
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "action must be payment or data-access")
	}

	g, err := s.grants.Get(ctx, req.GrantID)
	if err != nil && !dErrors.Is(err, dErrors.CodeNotFound) {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	out := policy.Evaluate(g, policy.Request{
		Scope:   req.Scope,
		Service: req.Service,
		Amount:  req.Amount,
	}, now)

	res := &Result{Outcome: out.Decision, Reason: out.Reason, Detail: out.Detail}

	if out.Decision == domain.DecisionBreakGlass {
		seniorID := ""
		if g != nil {
			seniorID = g.SeniorID
		}
		event, err := s.escalator.Trigger(ctx, escalation.TriggerParams{
			GrantID:    req.GrantID,
			SeniorID:   seniorID,
			AdvocateID: req.AdvocateID,
			Reason:     out.Trigger,
			Service:    req.Service,
			Amount:     req.Amount,
			Detail:     out.Detail,
		})
		if err != nil {
			return s.failClosed(span, "open break-glass escalation", err)
		}
		res.Escalation = event
		res.AdvocateNotified = true
	}

	entry, err := s.recorder.Record(ctx, ledger.Record{
		ChainID:  req.GrantID.String(),
		Actor:    req.AgentID,
		Action:   ledgerAction(req.Action, res.Outcome),
		Decision: string(res.Outcome),
		Reason:   res.Reason,
		Snapshot: s.actionSnapshot(req, res),
	})
	if err != nil {
		return s.failClosed(span, "append decision entry", err)
	}
	res.Entry = entry

	s.finish(span, res.Outcome)
	return res, nil
}

// InterceptCall scores an intercepted call and decides its fate. A critical
// score blocks the call outright and alerts the advocate; a suspicious one
// hands the caller to the answer bot.
func (s *Service) InterceptCall(ctx context.Context, req CallRequest) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "decision.intercept_call")
	defer span.End()
	defer s.observe(time.Now())

	if req.SeniorID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}

	sig, err := s.callScore.Score(signal.CallTranscript{Transcript: req.Transcript})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "score call transcript")
	}

	res := &Result{Signal: &sig, Detail: sig.Reasoning}
	switch sig.Action {
	case signal.ActionInterveneAndBlock:
		res.Outcome = domain.DecisionBlocked
		res.Reason = string(domain.TriggerCriticalRiskSignal)
	default:
		res.Outcome = domain.DecisionAllowed
		res.Reason = string(sig.Action)
	}

	if sig.Action != signal.ActionAllow {
		s.alerts.Enqueue(notify.Alert{
			AdvocateID: req.AdvocateID,
			SeniorID:   req.SeniorID,
			Reason:     domain.TriggerCriticalRiskSignal,
			Service:    "call:" + req.CallerNumber,
			CreatedAt:  requestcontext.Now(ctx),
		})
		res.AdvocateNotified = true
	}

	entry, err := s.recorder.Record(ctx, ledger.Record{
		ChainID:  ledger.UserChainID(req.SeniorID),
		Actor:    "sentinel",
		Action:   ledger.ActionCallIntercepted,
		Decision: string(res.Outcome),
		Reason:   res.Reason,
		Snapshot: map[string]any{
			"caller_number": req.CallerNumber,
			"fraud_score":   sig.Score,
			"indicators":    sig.Indicators,
			"action":        sig.Action,
		},
	})
	if err != nil {
		return s.failClosed(span, "append decision entry", err)
	}
	res.Entry = entry

	s.finish(span, res.Outcome)
	return res, nil
}

// MonitorTransaction scores a card transaction. The critical combination
// opens a break-glass escalation; a merely elevated score holds the
// transaction for advocate review without the ceremony.
func (s *Service) MonitorTransaction(ctx context.Context, req TransactionRequest) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "decision.monitor_transaction")
	defer span.End()
	defer s.observe(time.Now())

	if req.SeniorID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	if req.Amount <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = requestcontext.Now(ctx)
	}
	sig, err := s.txnScore.Score(signal.Transaction{
		Amount:   req.Amount,
		Time:     occurredAt,
		Category: req.Category,
		Merchant: req.Merchant,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "score transaction")
	}

	res := &Result{Signal: &sig, Detail: sig.Reasoning}
	switch {
	case sig.IsCritical():
		res.Outcome = domain.DecisionBreakGlass
		res.Reason = string(domain.TriggerCriticalRiskSignal)
		event, err := s.escalator.Trigger(ctx, escalation.TriggerParams{
			GrantID:    req.GrantID,
			SeniorID:   req.SeniorID,
			AdvocateID: req.AdvocateID,
			Reason:     domain.TriggerCriticalRiskSignal,
			Service:    req.Merchant,
			Amount:     req.Amount,
			Detail:     sig.Reasoning,
		})
		if err != nil {
			return s.failClosed(span, "open break-glass escalation", err)
		}
		res.Escalation = event
		res.AdvocateNotified = true
	case sig.Action == signal.ActionPendingApproval:
		res.Outcome = domain.DecisionBlocked
		res.Reason = string(signal.ActionPendingApproval)
		s.alerts.Enqueue(notify.Alert{
			AdvocateID: req.AdvocateID,
			SeniorID:   req.SeniorID,
			Reason:     domain.TriggerCriticalRiskSignal,
			Service:    req.Merchant,
			Amount:     req.Amount,
			CreatedAt:  requestcontext.Now(ctx),
		})
		res.AdvocateNotified = true
	default:
		res.Outcome = domain.DecisionAllowed
		res.Reason = string(signal.ActionApproved)
	}

	chainID := ledger.UserChainID(req.SeniorID)
	if !req.GrantID.IsNil() {
		chainID = req.GrantID.String()
	}
	entry, err := s.recorder.Record(ctx, ledger.Record{
		ChainID:  chainID,
		Actor:    "sentinel",
		Action:   ledger.ActionTransactionReviewed,
		Decision: string(res.Outcome),
		Reason:   res.Reason,
		Snapshot: map[string]any{
			"merchant":   req.Merchant,
			"category":   req.Category,
			"amount":     req.Amount,
			"risk_score": sig.Score,
			"risk_level": sig.Level,
			"flags":      sig.Indicators,
		},
	})
	if err != nil {
		return s.failClosed(span, "append decision entry", err)
	}
	res.Entry = entry

	s.finish(span, res.Outcome)
	return res, nil
}

func (s *Service) actionSnapshot(req ActionRequest, res *Result) map[string]any {
	snapshot := map[string]any{
		"agent_id": req.AgentID,
		"scope":    req.Scope,
		"service":  req.Service,
		"amount":   req.Amount,
		"action":   actionKind(req.Action),
	}
	if res.Escalation != nil {
		snapshot["escalation_id"] = res.Escalation.ID.String()
	}
	return snapshot
}

func actionKind(kind string) string {
	if kind == "" {
		return ActionKindPayment
	}
	return kind
}

// ledgerAction maps the request's action kind to the ledger vocabulary. A
// break-glass outcome is recorded as the escalation opening; the request kind
// stays visible in the snapshot.
func ledgerAction(kind string, outcome domain.Decision) string {
	if outcome == domain.DecisionBreakGlass {
		return ledger.ActionBreakGlassTriggered
	}
	if actionKind(kind) == ActionKindDataAccess {
		return ledger.ActionDataAccess
	}
	return ledger.ActionPayment
}

// failClosed converts an infrastructure failure into a BLOCKED result. A
// decision that cannot be audited is not allowed to stand.
func (s *Service) failClosed(span trace.Span, op string, err error) (*Result, error) {
	s.logger.Error("decision failed closed", slog.String("op", op), slog.Any("error", err))
	s.metrics.DecisionsTotal.WithLabelValues(string(domain.DecisionBlocked)).Inc()
	span.SetAttributes(attribute.String("decision.outcome", string(domain.DecisionBlocked)))
	return &Result{
			Outcome: domain.DecisionBlocked,
			Reason:  "AUDIT_UNAVAILABLE",
			Detail:  "the decision could not be recorded and was blocked",
		},
		dErrors.Wrap(err, dErrors.CodeInternal, "decision could not be recorded; action blocked")
}

func (s *Service) finish(span trace.Span, outcome domain.Decision) {
	s.metrics.DecisionsTotal.WithLabelValues(string(outcome)).Inc()
	span.SetAttributes(attribute.String("decision.outcome", string(outcome)))
}

func (s *Service) observe(start time.Time) {
	s.metrics.DecisionLatency.Observe(time.Since(start).Seconds())
}
