package grant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"aegis/internal/ledger"
	"aegis/pkg/domain"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/requestcontext"
)

// defaultExpiryDays applies when a create request carries no expiry.
const defaultExpiryDays = 30

// AuditRecorder appends grant lifecycle events to the audit ledger.
type AuditRecorder interface {
	Record(ctx context.Context, rec ledger.Record) (*ledger.Entry, error)
}

// CreateParams carries a grant creation request.
type CreateParams struct {
	SeniorID         string
	AgentID          string
	Scope            domain.Scope
	SpecificServices []string
	SpendLimit       *float64
	ExpiryDays       int
	CreatedBy        string
}

// Service manages the grant lifecycle. Every creation and revocation lands
// in the audit ledger; a grant whose lifecycle cannot be audited is not
// committed as far as the caller is concerned.
type Service struct {
	store    Store
	recorder AuditRecorder
	logger   *slog.Logger
}

func NewService(store Store, recorder AuditRecorder, logger *slog.Logger) *Service {
	return &Service{store: store, recorder: recorder, logger: logger}
}

// Create validates and persists a new grant, then audits POA_CREATED.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Grant, error) {
	if p.SeniorID == "" || p.AgentID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "senior_id and agent_id are required")
	}
	if !p.Scope.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown scope %q", p.Scope))
	}
	if p.SpendLimit != nil && *p.SpendLimit < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "spend_limit must not be negative")
	}
	if p.ExpiryDays < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "expiry_days must not be negative")
	}
	expiryDays := p.ExpiryDays
	if expiryDays == 0 {
		expiryDays = defaultExpiryDays
	}

	now := requestcontext.Now(ctx)
	g := &Grant{
		ID:               domain.NewGrantID(),
		SeniorID:         p.SeniorID,
		AgentID:          p.AgentID,
		Scope:            p.Scope,
		SpecificServices: p.SpecificServices,
		SpendLimit:       p.SpendLimit,
		IssuedAt:         now,
		ExpiresAt:        now.AddDate(0, 0, expiryDays),
		Status:           StatusActive,
		CreatedBy:        p.CreatedBy,
	}
	if err := s.store.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("create grant: %w", err)
	}

	_, err := s.recorder.Record(ctx, ledger.Record{
		ChainID:  g.ID.String(),
		Actor:    p.CreatedBy,
		Action:   ledger.ActionPOACreated,
		Decision: "ALLOWED",
		Snapshot: map[string]any{
			"senior_id":   g.SeniorID,
			"agent_id":    g.AgentID,
			"scope":       g.Scope,
			"spend_limit": g.SpendLimit,
			"expiry":      g.ExpiresAt.UTC(),
		},
	})
	if err != nil {
		s.logger.Error("audit grant creation", slog.String("poa_id", g.ID.String()), slog.Any("error", err))
		return nil, fmt.Errorf("audit grant creation: %w", err)
	}
	return g, nil
}

// Get resolves a grant with its time-driven status applied.
func (s *Service) Get(ctx context.Context, id domain.GrantID) (*Grant, error) {
	g, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "grant not found")
		}
		return nil, err
	}
	g.Status = g.EffectiveStatus(requestcontext.Now(ctx))
	return g, nil
}

// ListBySenior returns all grants issued by a principal, newest last.
func (s *Service) ListBySenior(ctx context.Context, seniorID string) ([]*Grant, error) {
	if seniorID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "senior_id is required")
	}
	grants, err := s.store.ListBySenior(ctx, seniorID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	for _, g := range grants {
		g.Status = g.EffectiveStatus(now)
	}
	return grants, nil
}

// Revoke flips an active grant to revoked and audits the transition.
// Revoking a grant that is already revoked or expired is an idempotent
// no-op: the stored record is returned unchanged and nothing is audited.
func (s *Service) Revoke(ctx context.Context, id domain.GrantID, revokedBy, reason string) (*Grant, error) {
	now := requestcontext.Now(ctx)

	g, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Status != StatusActive {
		return g, nil
	}

	revoked, err := s.store.Revoke(ctx, id, revokedBy, reason, now)
	if err != nil {
		return nil, fmt.Errorf("revoke grant: %w", err)
	}

	_, err = s.recorder.Record(ctx, ledger.Record{
		ChainID:  id.String(),
		Actor:    revokedBy,
		Action:   ledger.ActionPOARevoked,
		Decision: "BLOCKED",
		Reason:   reason,
		Snapshot: map[string]any{
			"revoked_by": revokedBy,
			"revoked_at": now.UTC(),
		},
	})
	if err != nil {
		s.logger.Error("audit grant revocation", slog.String("poa_id", id.String()), slog.Any("error", err))
		return nil, fmt.Errorf("audit grant revocation: %w", err)
	}
	return revoked, nil
}
