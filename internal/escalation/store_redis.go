package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
)

const (
	eventKeyPrefix       = "aegis:esc:"
	fingerprintKeyPrefix = "aegis:esc:fp:"
	advocateKeyPrefix    = "aegis:esc:adv:"
	deadlineKey          = "aegis:esc:deadline"
)

// RedisStore keeps escalation state in Redis. The version CAS rides on
// WATCH/MULTI: a concurrent write to the event key aborts the transaction
// and surfaces as sentinel.ErrConflict, same as the SQL store.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// redisEvent restores the fields the API representation hides.
type redisEvent struct {
	Event
	Code         string `json:"code"`
	Version      int64  `json:"version"`
	CodeConsumed bool   `json:"code_consumed"`
	Fingerprint  string `json:"fingerprint"`
}

func encodeEvent(e *Event) ([]byte, error) {
	return json.Marshal(redisEvent{
		Event:        *e,
		Code:         e.Code,
		Version:      e.Version,
		CodeConsumed: e.CodeConsumed,
		Fingerprint:  e.Fingerprint,
	})
}

func decodeEvent(raw []byte) (*Event, error) {
	var re redisEvent
	if err := json.Unmarshal(raw, &re); err != nil {
		return nil, fmt.Errorf("decode escalation: %w", err)
	}
	e := re.Event
	e.Code = re.Code
	e.Version = re.Version
	e.CodeConsumed = re.CodeConsumed
	e.Fingerprint = re.Fingerprint
	return &e, nil
}

func eventKey(id domain.EventID) string    { return eventKeyPrefix + id.String() }
func fingerprintKey(fp string) string      { return fingerprintKeyPrefix + fp }
func advocateKey(advocateID string) string { return advocateKeyPrefix + advocateID }

func (s *RedisStore) Create(ctx context.Context, e *Event) error {
	payload, err := encodeEvent(e)
	if err != nil {
		return err
	}

	// The fingerprint key is the uniqueness anchor: SETNX admits one
	// non-terminal event per pending action.
	ok, err := s.client.SetNX(ctx, fingerprintKey(e.Fingerprint), e.ID.String(), 0).Result()
	if err != nil {
		return fmt.Errorf("reserve fingerprint: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, eventKey(e.ID), payload, 0)
		pipe.SAdd(ctx, advocateKey(e.AdvocateID), e.ID.String())
		pipe.ZAdd(ctx, deadlineKey, redis.Z{Score: float64(e.CodeExpiresAt.Unix()), Member: e.ID.String()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store escalation: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id domain.EventID) (*Event, error) {
	raw, err := s.client.Get(ctx, eventKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get escalation: %w", err)
	}
	return decodeEvent(raw)
}

func (s *RedisStore) FindActiveByFingerprint(ctx context.Context, fingerprint string) (*Event, error) {
	id, err := s.client.Get(ctx, fingerprintKey(fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve fingerprint: %w", err)
	}
	eventID, err := domain.ParseEventID(id)
	if err != nil {
		return nil, fmt.Errorf("resolve fingerprint: %w", err)
	}
	return s.Get(ctx, eventID)
}

func (s *RedisStore) Update(ctx context.Context, e *Event, expectedVersion int64) error {
	key := eventKey(e.ID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		stored, err := decodeEvent(raw)
		if err != nil {
			return err
		}
		if stored.Version != expectedVersion {
			return sentinel.ErrConflict
		}

		next := *e
		next.Version = expectedVersion + 1
		payload, err := encodeEvent(&next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if next.Status.Terminal() {
				pipe.Del(ctx, fingerprintKey(next.Fingerprint))
				pipe.SRem(ctx, advocateKey(next.AdvocateID), next.ID.String())
				pipe.ZRem(ctx, deadlineKey, next.ID.String())
			}
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return err
	}
	e.Version = expectedVersion + 1
	return nil
}

func (s *RedisStore) ListPending(ctx context.Context, advocateID string) ([]*Event, error) {
	ids, err := s.client.SMembers(ctx, advocateKey(advocateID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending escalations: %w", err)
	}
	return s.collect(ctx, ids)
}

func (s *RedisStore) ListOverdue(ctx context.Context, now time.Time) ([]*Event, error) {
	ids, err := s.client.ZRangeByScore(ctx, deadlineKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list overdue escalations: %w", err)
	}
	return s.collect(ctx, ids)
}

func (s *RedisStore) collect(ctx context.Context, ids []string) ([]*Event, error) {
	var out []*Event
	for _, id := range ids {
		eventID, err := domain.ParseEventID(id)
		if err != nil {
			continue
		}
		e, err := s.Get(ctx, eventID)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
