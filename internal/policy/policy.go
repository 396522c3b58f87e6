// Package policy evaluates an action request against a grant. The evaluator
// is pure: it reads the grant and the clock it is handed and produces an
// outcome, leaving persistence, escalation, and auditing to the caller.
package policy

import (
	"fmt"
	"time"

	"aegis/internal/grant"
	"aegis/pkg/domain"
	dErrors "aegis/pkg/domain-errors"
)

// Violation codes carried on blocked outcomes.
const (
	ReasonNotFound       = "POA_NOT_FOUND"
	ReasonExpired        = "POA_EXPIRED"
	ReasonRevoked        = "POA_REVOKED"
	ReasonScopeViolation = "SCOPE_VIOLATION"
	ReasonSpendLimit     = "SPEND_LIMIT_EXCEEDED"
	ReasonAuthorized     = "AUTHORIZED"
)

// Request is the slice of an action request the validator needs.
type Request struct {
	// Scope is the category the agent claims to act under. Empty means the
	// request does not assert a category and only the allow-list applies.
	Scope   domain.Scope
	Service string
	Amount  float64
}

// Outcome is the validator verdict. Trigger is set only for BREAK_GLASS.
type Outcome struct {
	Decision domain.Decision
	Reason   string
	Detail   string
	Trigger  domain.TriggerReason
}

// Err converts a blocked outcome into its transport error. Allowed and
// break-glass outcomes carry no error.
func (o Outcome) Err() error {
	if o.Decision != domain.DecisionBlocked {
		return nil
	}
	switch o.Reason {
	case ReasonScopeViolation:
		return dErrors.New(dErrors.CodeScopeViolation, o.Detail)
	case ReasonNotFound:
		return dErrors.New(dErrors.CodeNotFound, o.Detail)
	default:
		return dErrors.New(dErrors.CodeExpiredCredential, o.Detail)
	}
}

// Evaluate applies the checks in fixed order: existence and validity first,
// then scope and allow-list, then the spend limit. The ordering is part of
// the contract: an expired grant reports expiry even when the request would
// also breach scope or limit.
func Evaluate(g *grant.Grant, req Request, now time.Time) Outcome {
	if g == nil {
		return Outcome{
			Decision: domain.DecisionBlocked,
			Reason:   ReasonNotFound,
			Detail:   "no grant on file for this request",
		}
	}

	switch g.EffectiveStatus(now) {
	case grant.StatusExpired:
		return Outcome{
			Decision: domain.DecisionBlocked,
			Reason:   ReasonExpired,
			Detail:   fmt.Sprintf("grant expired at %s", g.ExpiresAt.UTC().Format(time.RFC3339)),
		}
	case grant.StatusRevoked:
		return Outcome{
			Decision: domain.DecisionBlocked,
			Reason:   ReasonRevoked,
			Detail:   "grant has been revoked",
		}
	}

	if req.Scope != "" && req.Scope != g.Scope {
		return Outcome{
			Decision: domain.DecisionBlocked,
			Reason:   ReasonScopeViolation,
			Detail:   fmt.Sprintf("grant covers scope %s, not %s", g.Scope, req.Scope),
		}
	}
	if !g.AllowsService(req.Service) {
		return Outcome{
			Decision: domain.DecisionBlocked,
			Reason:   ReasonScopeViolation,
			Detail:   fmt.Sprintf("service %q is not on the grant allow-list", req.Service),
		}
	}

	if !g.WithinLimit(req.Amount) {
		return Outcome{
			Decision: domain.DecisionBreakGlass,
			Reason:   ReasonSpendLimit,
			Detail:   spendDetail(g, req.Amount),
			Trigger:  domain.TriggerSpendLimitExceeded,
		}
	}

	return Outcome{Decision: domain.DecisionAllowed, Reason: ReasonAuthorized}
}

func spendDetail(g *grant.Grant, amount float64) string {
	if g.SpendLimit == nil {
		return fmt.Sprintf("grant carries no spend authority; requested $%.2f", amount)
	}
	return fmt.Sprintf("requested $%.2f exceeds the $%.2f limit", amount, *g.SpendLimit)
}
