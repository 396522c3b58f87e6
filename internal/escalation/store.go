package escalation

import (
	"context"
	"time"

	"aegis/pkg/domain"
)

// Store persists escalation events. Update is a compare-and-swap on the
// event version: implementations commit the write only when the stored
// version equals expectedVersion, returning sentinel.ErrConflict otherwise.
type Store interface {
	// Create persists a new event. It fails with sentinel.ErrConflict when
	// another non-terminal event already holds the same fingerprint.
	Create(ctx context.Context, e *Event) error
	Get(ctx context.Context, id domain.EventID) (*Event, error)
	// FindActiveByFingerprint returns the non-terminal event for a pending
	// action, or sentinel.ErrNotFound.
	FindActiveByFingerprint(ctx context.Context, fingerprint string) (*Event, error)
	// Update commits e (with its version incremented) iff the stored
	// version equals expectedVersion.
	Update(ctx context.Context, e *Event, expectedVersion int64) error
	// ListPending returns non-terminal events assigned to an advocate.
	ListPending(ctx context.Context, advocateID string) ([]*Event, error)
	// ListOverdue returns non-terminal events whose verification window has
	// elapsed.
	ListOverdue(ctx context.Context, now time.Time) ([]*Event, error)
}
