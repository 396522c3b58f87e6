package domain

// Scope is the closed category of service a grant authorizes.
type Scope string

const (
	ScopeUtilities     Scope = "utilities"
	ScopeBanking       Scope = "banking"
	ScopeHealthcare    Scope = "healthcare"
	ScopeSubscriptions Scope = "subscriptions"
)

// IsValid reports whether the scope is one of the closed set.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeUtilities, ScopeBanking, ScopeHealthcare, ScopeSubscriptions:
		return true
	}
	return false
}
