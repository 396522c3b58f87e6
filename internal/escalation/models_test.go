package escalation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"aegis/internal/escalation"
)

func TestStatus_CanTransition(t *testing.T) {
	legal := []struct{ from, to escalation.Status }{
		{escalation.StatusPending, escalation.StatusCodeVerified},
		{escalation.StatusPending, escalation.StatusDenied},
		{escalation.StatusPending, escalation.StatusExpired},
		{escalation.StatusCodeVerified, escalation.StatusLivenessVerified},
		{escalation.StatusCodeVerified, escalation.StatusApproved},
		{escalation.StatusCodeVerified, escalation.StatusDenied},
		{escalation.StatusLivenessVerified, escalation.StatusApproved},
		{escalation.StatusLivenessVerified, escalation.StatusExpired},
	}
	for _, tc := range legal {
		assert.True(t, tc.from.CanTransition(tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	illegal := []struct{ from, to escalation.Status }{
		{escalation.StatusPending, escalation.StatusApproved},
		{escalation.StatusPending, escalation.StatusLivenessVerified},
		{escalation.StatusCodeVerified, escalation.StatusPending},
		{escalation.StatusLivenessVerified, escalation.StatusCodeVerified},
		{escalation.StatusApproved, escalation.StatusDenied},
		{escalation.StatusDenied, escalation.StatusApproved},
		{escalation.StatusExpired, escalation.StatusPending},
	}
	for _, tc := range illegal {
		assert.False(t, tc.from.CanTransition(tc.to), "%s -> %s should be illegal", tc.from, tc.to)
	}
}

func TestStatus_TerminalStatesAdmitNoMoves(t *testing.T) {
	all := []escalation.Status{
		escalation.StatusPending, escalation.StatusCodeVerified,
		escalation.StatusLivenessVerified, escalation.StatusApproved,
		escalation.StatusDenied, escalation.StatusExpired,
	}
	for _, terminal := range []escalation.Status{escalation.StatusApproved, escalation.StatusDenied, escalation.StatusExpired} {
		assert.True(t, terminal.Terminal())
		for _, to := range all {
			assert.False(t, terminal.CanTransition(to), "%s -> %s", terminal, to)
		}
	}
}
