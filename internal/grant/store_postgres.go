package grant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
)

// PostgresStore persists grants in the poa_grants table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const grantColumns = `id, senior_id, agent_id, scope, specific_services, spend_limit,
	issued_at, expires_at, status, revoked_at, revoked_by, revocation_reason, created_by`

func (s *PostgresStore) Create(ctx context.Context, g *Grant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO poa_grants (`+grantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		g.ID, g.SeniorID, g.AgentID, g.Scope, pq.Array(g.SpecificServices), g.SpendLimit,
		g.IssuedAt, g.ExpiresAt, g.Status, g.RevokedAt, nullable(g.RevokedBy),
		nullable(g.RevocationReason), nullable(g.CreatedBy),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert grant: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.GrantID) (*Grant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+grantColumns+` FROM poa_grants WHERE id = $1`, id)
	return scanGrant(row)
}

func (s *PostgresStore) ListBySenior(ctx context.Context, seniorID string) ([]*Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+grantColumns+` FROM poa_grants
		WHERE senior_id = $1 ORDER BY issued_at`, seniorID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var out []*Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Revoke(ctx context.Context, id domain.GrantID, revokedBy, reason string, at time.Time) (*Grant, error) {
	// Only active grants flip; revoking an already-settled grant is a no-op.
	_, err := s.db.ExecContext(ctx, `
		UPDATE poa_grants
		SET status = $2, revoked_at = $3, revoked_by = $4, revocation_reason = $5
		WHERE id = $1 AND status = $6`,
		id, StatusRevoked, at, revokedBy, reason, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("revoke grant: %w", err)
	}
	return s.Get(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (*Grant, error) {
	var (
		g          Grant
		services   pq.StringArray
		revokedBy  sql.NullString
		revocation sql.NullString
		createdBy  sql.NullString
	)
	err := row.Scan(
		&g.ID, &g.SeniorID, &g.AgentID, &g.Scope, &services, &g.SpendLimit,
		&g.IssuedAt, &g.ExpiresAt, &g.Status, &g.RevokedAt, &revokedBy,
		&revocation, &createdBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan grant: %w", err)
	}
	g.SpecificServices = services
	g.RevokedBy = revokedBy.String
	g.RevocationReason = revocation.String
	g.CreatedBy = createdBy.String
	return &g, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
