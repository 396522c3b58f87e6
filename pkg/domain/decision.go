package domain

// Decision is the terminal or pending outcome of an authorization evaluation.
type Decision string

const (
	DecisionAllowed    Decision = "ALLOWED"
	DecisionBlocked    Decision = "BLOCKED"
	DecisionBreakGlass Decision = "BREAK_GLASS"
)

// TriggerReason explains why a break-glass escalation was created.
type TriggerReason string

const (
	TriggerSpendLimitExceeded TriggerReason = "SPEND_LIMIT_EXCEEDED"
	TriggerScopeViolation     TriggerReason = "SCOPE_VIOLATION"
	TriggerCriticalRiskSignal TriggerReason = "CRITICAL_RISK_SIGNAL"
)
