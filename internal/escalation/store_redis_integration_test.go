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
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *escalation.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = escalation.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

// TestConcurrentCreateSameFingerprint mirrors the SQL store guarantee: one
// event per pending action, whoever wins the SETNX.
func (s *RedisStoreSuite) TestConcurrentCreateSameFingerprint() {
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

	s.Equal(int32(1), successCount.Load())
	s.Equal(int32(goroutines-1), conflictCount.Load())
}

// TestConcurrentUpdateSingleWinner verifies the WATCH-based CAS.
func (s *RedisStoreSuite) TestConcurrentUpdateSingleWinner() {
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

// TestPendingAndOverdueIndexes verifies the advocate set and deadline index
// track status transitions.
func (s *RedisStoreSuite) TestPendingAndOverdueIndexes() {
	ctx := context.Background()

	e := newTestEvent("grant-3|Water Bill|500.00")
	e.CodeExpiresAt = time.Now().Add(-time.Minute)
	s.Require().NoError(s.store.Create(ctx, e))

	pending, err := s.store.ListPending(ctx, "advocate-1")
	s.Require().NoError(err)
	s.Len(pending, 1)

	overdue, err := s.store.ListOverdue(ctx, time.Now())
	s.Require().NoError(err)
	s.Len(overdue, 1)

	next := *e
	next.Status = escalation.StatusExpired
	s.Require().NoError(s.store.Update(ctx, &next, 0))

	pending, err = s.store.ListPending(ctx, "advocate-1")
	s.Require().NoError(err)
	s.Empty(pending)

	overdue, err = s.store.ListOverdue(ctx, time.Now())
	s.Require().NoError(err)
	s.Empty(overdue)
}
