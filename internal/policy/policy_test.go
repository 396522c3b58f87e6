package policy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"aegis/internal/grant"
	"aegis/internal/policy"
	"aegis/pkg/domain"
)

var evalTime = time.Date(2026, time.May, 10, 9, 30, 0, 0, time.UTC)

func limit(v float64) *float64 { return &v }

func utilitiesGrant() *grant.Grant {
	return &grant.Grant{
		ID:               domain.NewGrantID(),
		SeniorID:         "senior-1",
		AgentID:          "agent-1",
		Scope:            domain.ScopeUtilities,
		SpecificServices: []string{"Water Bill", "Electric Bill"},
		SpendLimit:       limit(150),
		IssuedAt:         evalTime.AddDate(0, 0, -5),
		ExpiresAt:        evalTime.AddDate(0, 0, 25),
		Status:           grant.StatusActive,
	}
}

func TestEvaluate_AllowedWithinLimit(t *testing.T) {
	out := policy.Evaluate(utilitiesGrant(), policy.Request{
		Scope:   domain.ScopeUtilities,
		Service: "Water Bill",
		Amount:  75,
	}, evalTime)

	assert.Equal(t, domain.DecisionAllowed, out.Decision)
	assert.Equal(t, policy.ReasonAuthorized, out.Reason)
	assert.NoError(t, out.Err())
}

func TestEvaluate_SpendLimitBreachEscalates(t *testing.T) {
	out := policy.Evaluate(utilitiesGrant(), policy.Request{
		Scope:   domain.ScopeUtilities,
		Service: "Water Bill",
		Amount:  500,
	}, evalTime)

	assert.Equal(t, domain.DecisionBreakGlass, out.Decision)
	assert.Equal(t, policy.ReasonSpendLimit, out.Reason)
	assert.Equal(t, domain.TriggerSpendLimitExceeded, out.Trigger)
	assert.NoError(t, out.Err())
}

func TestEvaluate_ExactLimitAllowed(t *testing.T) {
	out := policy.Evaluate(utilitiesGrant(), policy.Request{
		Scope:   domain.ScopeUtilities,
		Service: "Water Bill",
		Amount:  150,
	}, evalTime)

	assert.Equal(t, domain.DecisionAllowed, out.Decision)
}

func TestEvaluate_NilSpendLimitBlocksAnySpend(t *testing.T) {
	g := utilitiesGrant()
	g.SpendLimit = nil

	out := policy.Evaluate(g, policy.Request{
		Scope:   domain.ScopeUtilities,
		Service: "Water Bill",
		Amount:  1,
	}, evalTime)

	assert.Equal(t, domain.DecisionBreakGlass, out.Decision)
	assert.Equal(t, domain.TriggerSpendLimitExceeded, out.Trigger)
}

func TestEvaluate_ZeroAmountNeedsNoSpendAuthority(t *testing.T) {
	g := utilitiesGrant()
	g.SpendLimit = nil

	out := policy.Evaluate(g, policy.Request{
		Scope:   domain.ScopeUtilities,
		Service: "Water Bill",
	}, evalTime)

	assert.Equal(t, domain.DecisionAllowed, out.Decision)
}

func TestEvaluate_ScopeMismatchBlocks(t *testing.T) {
	out := policy.Evaluate(utilitiesGrant(), policy.Request{
		Scope:   domain.ScopeBanking,
		Service: "Water Bill",
		Amount:  10,
	}, evalTime)

	assert.Equal(t, domain.DecisionBlocked, out.Decision)
	assert.Equal(t, policy.ReasonScopeViolation, out.Reason)
	assert.Error(t, out.Err())
}

func TestEvaluate_ServiceOutsideAllowListBlocks(t *testing.T) {
	out := policy.Evaluate(utilitiesGrant(), policy.Request{
		Scope:   domain.ScopeUtilities,
		Service: "Gas Bill",
		Amount:  10,
	}, evalTime)

	assert.Equal(t, domain.DecisionBlocked, out.Decision)
	assert.Equal(t, policy.ReasonScopeViolation, out.Reason)
}

func TestEvaluate_EmptyAllowListPermitsScope(t *testing.T) {
	g := utilitiesGrant()
	g.SpecificServices = nil

	out := policy.Evaluate(g, policy.Request{
		Scope:   domain.ScopeUtilities,
		Service: "Gas Bill",
		Amount:  10,
	}, evalTime)

	assert.Equal(t, domain.DecisionAllowed, out.Decision)
}

func TestEvaluate_ExpiredBeforeScopeOrLimit(t *testing.T) {
	g := utilitiesGrant()
	g.ExpiresAt = evalTime.Add(-time.Hour)

	// The request also breaches scope and limit; expiry must win.
	out := policy.Evaluate(g, policy.Request{
		Scope:   domain.ScopeBanking,
		Service: "Gas Bill",
		Amount:  9999,
	}, evalTime)

	assert.Equal(t, domain.DecisionBlocked, out.Decision)
	assert.Equal(t, policy.ReasonExpired, out.Reason)
}

func TestEvaluate_ExpiryBoundaryIsExclusive(t *testing.T) {
	g := utilitiesGrant()
	g.ExpiresAt = evalTime

	out := policy.Evaluate(g, policy.Request{
		Scope:   domain.ScopeUtilities,
		Service: "Water Bill",
		Amount:  10,
	}, evalTime)

	assert.Equal(t, domain.DecisionBlocked, out.Decision)
	assert.Equal(t, policy.ReasonExpired, out.Reason)
}

func TestEvaluate_RevokedBlocks(t *testing.T) {
	g := utilitiesGrant()
	g.Status = grant.StatusRevoked

	out := policy.Evaluate(g, policy.Request{
		Scope:   domain.ScopeUtilities,
		Service: "Water Bill",
		Amount:  10,
	}, evalTime)

	assert.Equal(t, domain.DecisionBlocked, out.Decision)
	assert.Equal(t, policy.ReasonRevoked, out.Reason)
}

func TestEvaluate_NilGrantBlocks(t *testing.T) {
	out := policy.Evaluate(nil, policy.Request{Service: "Water Bill", Amount: 10}, evalTime)

	assert.Equal(t, domain.DecisionBlocked, out.Decision)
	assert.Equal(t, policy.ReasonNotFound, out.Reason)
}
