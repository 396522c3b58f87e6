// Package grant holds the Smart POA model: a scoped, time-boxed,
// spend-limited delegation of authority from a principal to an agent.
package grant

import (
	"time"

	"aegis/pkg/domain"
)

// Status is the grant lifecycle state. Transitions are one-way:
// active -> expired (time-driven) and active -> revoked (explicit).
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Grant is immutable except for status transitions. Grants are never
// deleted, only status-flipped, to preserve audit continuity.
type Grant struct {
	ID       domain.GrantID `json:"poa_id"`
	SeniorID string         `json:"senior_id"`
	AgentID  string         `json:"agent_id"`

	Scope domain.Scope `json:"scope"`
	// SpecificServices narrows the scope to named services; nil allows the
	// whole scope.
	SpecificServices []string `json:"specific_services,omitempty"`
	// SpendLimit is the maximum single-transaction amount. Nil means the
	// grant carries no spend authority at all.
	SpendLimit *float64 `json:"spend_limit,omitempty"`

	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expiry"`

	Status           Status     `json:"status"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevokedBy        string     `json:"revoked_by,omitempty"`
	RevocationReason string     `json:"revocation_reason,omitempty"`

	CreatedBy string `json:"created_by,omitempty"`
}

// EffectiveStatus resolves the time-driven active -> expired transition
// without mutating the stored record.
func (g *Grant) EffectiveStatus(now time.Time) Status {
	if g.Status == StatusActive && !now.Before(g.ExpiresAt) {
		return StatusExpired
	}
	return g.Status
}

// IsValid reports whether the grant can authorize anything at the given time.
func (g *Grant) IsValid(now time.Time) bool {
	return g.EffectiveStatus(now) == StatusActive
}

// AllowsService checks the allow-list. A nil allow-list permits every
// service within the scope.
func (g *Grant) AllowsService(serviceName string) bool {
	if len(g.SpecificServices) == 0 {
		return true
	}
	for _, s := range g.SpecificServices {
		if s == serviceName {
			return true
		}
	}
	return false
}

// WithinLimit checks the spend limit. A grant with no spend limit authorizes
// no spend: any positive amount is over limit.
func (g *Grant) WithinLimit(amount float64) bool {
	if amount <= 0 {
		return true
	}
	if g.SpendLimit == nil {
		return false
	}
	return amount <= *g.SpendLimit
}
