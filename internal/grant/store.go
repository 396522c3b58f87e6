package grant

import (
	"context"
	"time"

	"aegis/pkg/domain"
)

// Store persists grants. Implementations return sentinel.ErrNotFound when a
// grant id is unknown.
type Store interface {
	Create(ctx context.Context, g *Grant) error
	Get(ctx context.Context, id domain.GrantID) (*Grant, error)
	ListBySenior(ctx context.Context, seniorID string) ([]*Grant, error)
	// Revoke flips an active grant to revoked. Revoking a grant that is
	// already revoked or expired is a no-op returning the stored record.
	Revoke(ctx context.Context, id domain.GrantID, revokedBy, reason string, at time.Time) (*Grant, error)
}
