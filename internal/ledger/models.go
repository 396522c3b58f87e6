// Package ledger implements the append-only, HMAC-chained audit trail.
// Every decision point produces exactly one entry; each entry's signature
// covers its canonical content plus the previous entry's signature, so any
// alteration or reordering breaks verification from that point forward.
package ledger

import (
	"encoding/json"
	"time"

	"aegis/pkg/domain"
)

// Action kinds recorded on ledger entries.
const (
	ActionPOACreated          = "POA_CREATED"
	ActionPOARevoked          = "POA_REVOKED"
	ActionPayment             = "REQUEST_PAYMENT"
	ActionDataAccess          = "DATA_ACCESS"
	ActionCallIntercepted     = "CALL_INTERCEPTED"
	ActionTransactionReviewed = "TRANSACTION_REVIEWED"
	ActionBreakGlassTriggered = "BREAK_GLASS_TRIGGERED"
	ActionCodeVerified        = "TWO_FA_VERIFIED"
	ActionLivenessVerified    = "LIVENESS_VERIFIED"
	ActionEscalationApproved  = "ESCALATION_APPROVED"
	ActionEscalationDenied    = "ESCALATION_DENIED"
	ActionEscalationExpired   = "ESCALATION_EXPIRED"
)

// Record is what callers submit for appending. The service assigns the
// identity, sequence, timestamp, and signature.
type Record struct {
	// ChainID selects the hash chain. Grant-bound events chain under the
	// grant id; sentinel events with no grant chain under "user:<id>".
	ChainID  string
	Actor    string
	Action   string
	Decision string
	Reason   string
	// Snapshot captures the inputs behind the decision. It is canonicalized
	// before signing, so map ordering does not affect the signature.
	Snapshot map[string]any
}

// Entry is a sealed ledger row.
type Entry struct {
	ID        domain.EntryID  `json:"log_id"`
	ChainID   string          `json:"chain_id"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	Decision  string          `json:"decision"`
	Reason    string          `json:"reason,omitempty"`
	Snapshot  json.RawMessage `json:"snapshot,omitempty"`

	PrevSignature string `json:"prev_signature"`
	Signature     string `json:"signature"`
}

// UserChainID is the chain for sentinel events that occur before any grant
// is involved, keyed by the protected user.
func UserChainID(userID string) string {
	return "user:" + userID
}
