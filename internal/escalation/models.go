// Package escalation implements the break-glass flow: when a decision
// exceeds delegated authority, a human advocate steps in through a short,
// audited approval ceremony.
package escalation

import (
	"fmt"
	"time"

	"aegis/internal/ledger"
	"aegis/internal/liveness"
	"aegis/pkg/domain"
)

// Status is the escalation state. Transitions are monotonic: an event moves
// forward through verification or lands on a terminal state, never back.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusCodeVerified     Status = "CODE_VERIFIED"
	StatusLivenessVerified Status = "LIVENESS_VERIFIED"
	StatusApproved         Status = "APPROVED"
	StatusDenied           Status = "DENIED"
	StatusExpired          Status = "EXPIRED"
)

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusDenied, StatusExpired:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:          {StatusCodeVerified, StatusDenied, StatusExpired},
	StatusCodeVerified:     {StatusLivenessVerified, StatusApproved, StatusDenied, StatusExpired},
	StatusLivenessVerified: {StatusApproved, StatusDenied, StatusExpired},
}

// CanTransition reports whether s -> next is a legal move.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Event is one break-glass escalation. Version guards every mutation: a
// write commits only against the version it read, so two advocates racing
// on the same event produce exactly one transition.
type Event struct {
	ID         domain.EventID `json:"event_id"`
	GrantID    domain.GrantID `json:"poa_id,omitempty"`
	SeniorID   string         `json:"senior_id,omitempty"`
	AdvocateID string         `json:"advocate_id"`

	TriggerReason domain.TriggerReason `json:"trigger_reason"`
	Service       string               `json:"service,omitempty"`
	Amount        float64              `json:"amount,omitempty"`
	Detail        string               `json:"detail,omitempty"`

	Status  Status `json:"status"`
	Version int64  `json:"-"`

	// Code is single use: consumed on the first successful verification,
	// worthless after CodeExpiresAt regardless of use.
	Code          string    `json:"-"`
	CodeExpiresAt time.Time `json:"code_expires_at"`
	CodeConsumed  bool      `json:"-"`

	LivenessRequired bool             `json:"liveness_required"`
	Liveness         *liveness.Result `json:"liveness,omitempty"`

	ResolvedBy       string     `json:"resolved_by,omitempty"`
	ResolutionReason string     `json:"resolution_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`

	// Fingerprint identifies the (grant, action) pair so at most one
	// non-terminal escalation exists per pending action.
	Fingerprint string `json:"-"`
}

// CodeExpired reports whether the verification window has elapsed.
func (e *Event) CodeExpired(now time.Time) bool {
	return now.After(e.CodeExpiresAt)
}

// ChainID selects the audit chain for this event's transitions.
func (e *Event) ChainID() string {
	if !e.GrantID.IsNil() {
		return e.GrantID.String()
	}
	return ledger.UserChainID(e.SeniorID)
}

// BuildFingerprint derives the uniqueness key for a pending action.
func BuildFingerprint(grantID domain.GrantID, seniorID, service string, amount float64) string {
	subject := grantID.String()
	if grantID.IsNil() {
		subject = "user:" + seniorID
	}
	return fmt.Sprintf("%s|%s|%.2f", subject, service, amount)
}
