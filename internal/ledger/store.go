package ledger

import (
	"context"

	"aegis/pkg/domain"
)

// Store persists sealed entries. Entries are append-only: no update or
// delete operations exist at this layer.
type Store interface {
	// Append persists e as the new head of its chain. It fails with
	// sentinel.ErrConflict when e.Seq is not exactly one past the current
	// head, which callers treat as a lost append race and retry.
	Append(ctx context.Context, e *Entry) error
	// Head returns the latest entry of a chain, or sentinel.ErrNotFound
	// when the chain is empty.
	Head(ctx context.Context, chainID string) (*Entry, error)
	// List returns a chain's entries in ascending sequence order.
	List(ctx context.Context, chainID string) ([]*Entry, error)
	Get(ctx context.Context, id domain.EntryID) (*Entry, error)
}
