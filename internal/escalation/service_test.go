package escalation_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/escalation"
	"aegis/internal/ledger"
	"aegis/internal/liveness"
	"aegis/internal/notify"
	"aegis/internal/platform/metrics"
	"aegis/pkg/domain"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/requestcontext"
)

type alertSink struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (s *alertSink) Enqueue(a notify.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

func (s *alertSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func (s *alertSink) last() notify.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts[len(s.alerts)-1]
}

type fixture struct {
	service *escalation.Service
	audit   *ledger.Service
	alerts  *alertSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	audit := ledger.NewService(ledger.NewMemoryStore(), ledger.NewSigner([]byte("test-key")), logger, metrics.NewForTest())
	alerts := &alertSink{}
	svc := escalation.NewService(
		escalation.NewMemoryStore(),
		liveness.NewStaticVerifier(),
		audit,
		alerts,
		logger,
		metrics.NewForTest(),
	)
	return &fixture{service: svc, audit: audit, alerts: alerts}
}

var baseTime = time.Date(2026, time.June, 2, 10, 0, 0, 0, time.UTC)

func at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func spendParams(grantID domain.GrantID) escalation.TriggerParams {
	return escalation.TriggerParams{
		GrantID:    grantID,
		SeniorID:   "senior-1",
		AdvocateID: "advocate-1",
		Reason:     domain.TriggerSpendLimitExceeded,
		Service:    "Water Bill",
		Amount:     500,
	}
}

func criticalParams(grantID domain.GrantID) escalation.TriggerParams {
	p := spendParams(grantID)
	p.Reason = domain.TriggerCriticalRiskSignal
	p.Amount = 1299.99
	return p
}

func auditActions(t *testing.T, f *fixture, chainID string) []string {
	t.Helper()
	entries, err := f.audit.List(context.Background(), chainID)
	require.NoError(t, err)
	actions := make([]string, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	return actions
}

func TestTrigger_CreatesPendingEvent(t *testing.T) {
	f := newFixture(t)
	ctx := at(baseTime)

	e, err := f.service.Trigger(ctx, spendParams(domain.NewGrantID()))
	require.NoError(t, err)

	assert.Equal(t, escalation.StatusPending, e.Status)
	assert.Len(t, e.Code, 6)
	assert.Equal(t, baseTime.Add(5*time.Minute), e.CodeExpiresAt)
	assert.False(t, e.LivenessRequired)

	require.Equal(t, 1, f.alerts.count())
	assert.Equal(t, e.Code, f.alerts.last().Code)
}

func TestTrigger_CriticalRequiresLiveness(t *testing.T) {
	f := newFixture(t)

	e, err := f.service.Trigger(at(baseTime), criticalParams(domain.NewGrantID()))
	require.NoError(t, err)
	assert.True(t, e.LivenessRequired)
}

func TestTrigger_DeduplicatesPendingAction(t *testing.T) {
	f := newFixture(t)
	grantID := domain.NewGrantID()
	ctx := at(baseTime)

	first, err := f.service.Trigger(ctx, spendParams(grantID))
	require.NoError(t, err)
	second, err := f.service.Trigger(ctx, spendParams(grantID))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.alerts.count())
}

func TestVerifyCode_ApprovesWithoutLiveness(t *testing.T) {
	f := newFixture(t)
	grantID := domain.NewGrantID()
	ctx := at(baseTime)

	e, err := f.service.Trigger(ctx, spendParams(grantID))
	require.NoError(t, err)

	resolved, err := f.service.VerifyCode(at(baseTime.Add(time.Minute)), e.ID, e.Code, "advocate-1")
	require.NoError(t, err)
	assert.Equal(t, escalation.StatusApproved, resolved.Status)
	assert.Equal(t, "advocate-1", resolved.ResolvedBy)

	actions := auditActions(t, f, grantID.String())
	assert.Equal(t, []string{ledger.ActionCodeVerified, ledger.ActionEscalationApproved}, actions)
}

func TestVerifyCode_WrongCodeRejected(t *testing.T) {
	f := newFixture(t)
	ctx := at(baseTime)

	e, err := f.service.Trigger(ctx, spendParams(domain.NewGrantID()))
	require.NoError(t, err)

	got, err := f.service.VerifyCode(ctx, e.ID, "000000", "advocate-1")
	assert.Equal(t, dErrors.CodeCodeInvalid, dErrors.CodeOf(err))
	assert.Equal(t, escalation.StatusPending, got.Status)
}

func TestVerifyCode_AfterWindowExpires(t *testing.T) {
	f := newFixture(t)

	e, err := f.service.Trigger(at(baseTime), spendParams(domain.NewGrantID()))
	require.NoError(t, err)

	late := at(baseTime.Add(6 * time.Minute))
	got, err := f.service.VerifyCode(late, e.ID, e.Code, "advocate-1")
	assert.Equal(t, dErrors.CodeCodeInvalid, dErrors.CodeOf(err))
	assert.Equal(t, escalation.StatusExpired, got.Status)
}

func TestVerifyLiveness_CriticalFlow(t *testing.T) {
	f := newFixture(t)
	grantID := domain.NewGrantID()
	ctx := at(baseTime)

	e, err := f.service.Trigger(ctx, criticalParams(grantID))
	require.NoError(t, err)

	afterCode, err := f.service.VerifyCode(ctx, e.ID, e.Code, "advocate-1")
	require.NoError(t, err)
	assert.Equal(t, escalation.StatusCodeVerified, afterCode.Status)

	resolved, err := f.service.VerifyLiveness(ctx, e.ID, liveness.MethodFacial, "frame-data", "advocate-1")
	require.NoError(t, err)
	assert.Equal(t, escalation.StatusApproved, resolved.Status)
	require.NotNil(t, resolved.Liveness)
	assert.True(t, resolved.Liveness.Verified)

	actions := auditActions(t, f, grantID.String())
	assert.Equal(t, []string{
		ledger.ActionCodeVerified,
		ledger.ActionLivenessVerified,
		ledger.ActionEscalationApproved,
	}, actions)
}

func TestVerifyLiveness_BeforeCodeIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := at(baseTime)

	e, err := f.service.Trigger(ctx, criticalParams(domain.NewGrantID()))
	require.NoError(t, err)

	got, err := f.service.VerifyLiveness(ctx, e.ID, liveness.MethodFacial, "frame-data", "advocate-1")
	assert.Equal(t, dErrors.CodeConflict, dErrors.CodeOf(err))
	assert.Equal(t, escalation.StatusPending, got.Status)
}

func TestVerifyLiveness_FailedCheckDoesNotAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := at(baseTime)

	e, err := f.service.Trigger(ctx, criticalParams(domain.NewGrantID()))
	require.NoError(t, err)
	_, err = f.service.VerifyCode(ctx, e.ID, e.Code, "advocate-1")
	require.NoError(t, err)

	// Empty payload fails the static verifier.
	got, err := f.service.VerifyLiveness(ctx, e.ID, liveness.MethodFacial, "", "advocate-1")
	assert.Equal(t, dErrors.CodeForbidden, dErrors.CodeOf(err))
	assert.Equal(t, escalation.StatusCodeVerified, got.Status)
}

func TestDeny_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	grantID := domain.NewGrantID()
	ctx := at(baseTime)

	e, err := f.service.Trigger(ctx, spendParams(grantID))
	require.NoError(t, err)

	denied, err := f.service.Deny(ctx, e.ID, "advocate-1", "did not recognize the purchase")
	require.NoError(t, err)
	assert.Equal(t, escalation.StatusDenied, denied.Status)

	again, err := f.service.Deny(ctx, e.ID, "advocate-1", "second attempt")
	require.NoError(t, err)
	assert.Equal(t, "did not recognize the purchase", again.ResolutionReason)

	actions := auditActions(t, f, grantID.String())
	assert.Equal(t, []string{ledger.ActionEscalationDenied}, actions)
}

func TestVerifyCode_ConcurrentSubmissionsSingleWinner(t *testing.T) {
	f := newFixture(t)
	grantID := domain.NewGrantID()
	ctx := at(baseTime)

	e, err := f.service.Trigger(ctx, spendParams(grantID))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*escalation.Event, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, _ := f.service.VerifyCode(ctx, e.ID, e.Code, "advocate-1")
			results[i] = got
		}(i)
	}
	wg.Wait()

	final, err := f.service.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, escalation.StatusApproved, final.Status)
	for _, got := range results {
		require.NotNil(t, got)
	}

	// Exactly one verification landed in the ledger.
	actions := auditActions(t, f, grantID.String())
	verified := 0
	for _, a := range actions {
		if a == ledger.ActionCodeVerified {
			verified++
		}
	}
	assert.Equal(t, 1, verified)
}

func TestExpireOverdue_SweepsPendingEvents(t *testing.T) {
	f := newFixture(t)

	e, err := f.service.Trigger(at(baseTime), spendParams(domain.NewGrantID()))
	require.NoError(t, err)

	expired, err := f.service.ExpireOverdue(at(baseTime.Add(10 * time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := f.service.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, escalation.StatusExpired, got.Status)
}

func TestListPending_FiltersByAdvocateAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := at(baseTime)

	e1, err := f.service.Trigger(ctx, spendParams(domain.NewGrantID()))
	require.NoError(t, err)

	other := spendParams(domain.NewGrantID())
	other.AdvocateID = "advocate-2"
	_, err = f.service.Trigger(ctx, other)
	require.NoError(t, err)

	pending, err := f.service.ListPending(ctx, "advocate-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, e1.ID, pending[0].ID)

	_, err = f.service.Deny(ctx, e1.ID, "advocate-1", "no")
	require.NoError(t, err)

	pending, err = f.service.ListPending(ctx, "advocate-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
