// Package signal turns call transcripts and transaction descriptions into
// numeric risk signals. Scorers are pure and stateless; new signal kinds plug
// in through the Scorer contract without touching callers.
package signal

// Kind discriminates the input types a scorer can evaluate.
type Kind string

const (
	KindCallTranscript Kind = "call_transcript"
	KindTransaction    Kind = "transaction"
)

// Input is anything a scorer can evaluate.
type Input interface {
	SignalKind() Kind
}

// Level is the discrete risk classification derived from the score.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Action is the scorer's recommended response.
type Action string

const (
	// Call-transcript actions.
	ActionAllow             Action = "ALLOW"
	ActionActivateAnswerBot Action = "ACTIVATE_ANSWER_BOT"
	ActionInterveneAndBlock Action = "INTERVENE_AND_BLOCK"

	// Transaction actions.
	ActionApproved        Action = "APPROVED"
	ActionPendingApproval Action = "PENDING_APPROVAL"
)

// Indicator is one contributing category with its configured weight.
type Indicator struct {
	Category string `json:"category"`
	Weight   int    `json:"weight"`
}

// Signal is the output of a scorer: a score in [0,100], the level derived
// from fixed breakpoints, the recommended action, and the ordered list of
// contributing indicators.
type Signal struct {
	Kind       Kind        `json:"kind"`
	Score      int         `json:"score"`
	Level      Level       `json:"level"`
	Action     Action      `json:"action"`
	Indicators []Indicator `json:"indicators"`
	Reasoning  string      `json:"reasoning"`
}

// IsCritical reports whether the signal demands break-glass escalation.
func (s Signal) IsCritical() bool {
	return s.Level == LevelCritical || s.Action == ActionInterveneAndBlock
}

// Scorer produces a Signal from a typed input. Implementations must be pure:
// same input, same signal, no I/O.
type Scorer interface {
	Kind() Kind
	Score(in Input) (Signal, error)
}

// levelForScore maps a summed score onto the fixed breakpoints. The
// transaction scorer's conjunctive critical rule can override the result.
func levelForScore(score int) Level {
	switch {
	case score >= 90:
		return LevelCritical
	case score >= 70:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

// capScore clamps a summed weight total into [0,100].
func capScore(total int) int {
	if total > 100 {
		return 100
	}
	if total < 0 {
		return 0
	}
	return total
}
