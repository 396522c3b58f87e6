//go:build integration

package escalation_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"aegis/internal/escalation"
	"aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *escalation.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = escalation.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "escalation_events"))
}

func newTestEvent(fingerprint string) *escalation.Event {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &escalation.Event{
		ID:            domain.NewEventID(),
		SeniorID:      "senior-1",
		AdvocateID:    "advocate-1",
		TriggerReason: domain.TriggerSpendLimitExceeded,
		Service:       "Water Bill",
		Amount:        500,
		Status:        escalation.StatusPending,
		Code:          "123456",
		CodeExpiresAt: now.Add(5 * time.Minute),
		CreatedAt:     now,
		Fingerprint:   fingerprint,
	}
}

// TestConcurrentCreateSameFingerprint verifies that racing triggers for the
// same pending action produce exactly one event.
func (s *PostgresStoreSuite) TestConcurrentCreateSameFingerprint() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, newTestEvent("grant-1|Water Bill|500.00"))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load())
}

// TestConcurrentUpdateSingleWinner verifies the version CAS under contention.
func (s *PostgresStoreSuite) TestConcurrentUpdateSingleWinner() {
	ctx := context.Background()
	e := newTestEvent("grant-2|Water Bill|500.00")
	s.Require().NoError(s.store.Create(ctx, e))

	const goroutines = 20
	var wg sync.WaitGroup
	var successCount atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := *e
			next.Status = escalation.StatusCodeVerified
			next.CodeConsumed = true
			if err := s.store.Update(ctx, &next, 0); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one CAS should win")

	got, err := s.store.Get(ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(escalation.StatusCodeVerified, got.Status)
	s.Equal(int64(1), got.Version)
}

// TestTerminalEventFreesFingerprint verifies a settled escalation no longer
// blocks a new one for the same action.
func (s *PostgresStoreSuite) TestTerminalEventFreesFingerprint() {
	ctx := context.Background()
	fp := "grant-3|Water Bill|500.00"

	e := newTestEvent(fp)
	s.Require().NoError(s.store.Create(ctx, e))

	next := *e
	next.Status = escalation.StatusDenied
	next.ResolvedBy = "advocate-1"
	s.Require().NoError(s.store.Update(ctx, &next, 0))

	s.Require().NoError(s.store.Create(ctx, newTestEvent(fp)))

	_, err := s.store.FindActiveByFingerprint(ctx, fp)
	s.Require().NoError(err)
}

// TestListOverdue returns only non-terminal events past their window.
func (s *PostgresStoreSuite) TestListOverdue() {
	ctx := context.Background()

	overdue := newTestEvent("grant-4|Water Bill|500.00")
	overdue.CodeExpiresAt = time.Now().Add(-time.Minute)
	s.Require().NoError(s.store.Create(ctx, overdue))

	fresh := newTestEvent("grant-5|Water Bill|500.00")
	s.Require().NoError(s.store.Create(ctx, fresh))

	events, err := s.store.ListOverdue(ctx, time.Now())
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(overdue.ID, events[0].ID)
}
