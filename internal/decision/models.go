// Package decision is the single entry point for authorization decisions.
// It composes the signal scorers, the policy evaluator, the break-glass
// engine, and the audit ledger: every decision leaves exactly one ledger
// entry, and no path bypasses the facade.
package decision

import (
	"time"

	"aegis/internal/escalation"
	"aegis/internal/ledger"
	"aegis/internal/signal"
	"aegis/pkg/domain"
)

// Action kinds accepted on validation requests.
const (
	ActionKindPayment    = "payment"
	ActionKindDataAccess = "data-access"
)

// ActionRequest asks whether an agent may perform an action under a grant.
// Action is the kind of action requested; it defaults to payment.
type ActionRequest struct {
	GrantID    domain.GrantID
	AgentID    string
	AdvocateID string
	Scope      domain.Scope
	Service    string
	Amount     float64
	Action     string
}

// CallRequest submits an intercepted call for a decision.
type CallRequest struct {
	SeniorID     string
	AdvocateID   string
	CallerNumber string
	Transcript   string
}

// TransactionRequest submits a card transaction for a decision.
type TransactionRequest struct {
	SeniorID   string
	AdvocateID string
	GrantID    domain.GrantID
	Amount     float64
	Merchant   string
	Category   string
	OccurredAt time.Time
}

// Result is the facade verdict. Entry is the one ledger entry the decision
// produced; Escalation is set when the outcome is BREAK_GLASS.
type Result struct {
	Outcome          domain.Decision
	Reason           string
	Detail           string
	Signal           *signal.Signal
	Escalation       *escalation.Event
	Entry            *ledger.Entry
	AdvocateNotified bool
}
