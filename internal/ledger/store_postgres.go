package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
)

// PostgresStore persists entries in the audit_entries table. A unique index
// on (chain_id, seq) makes concurrent appends race safely: exactly one
// writer lands each sequence number.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const entryColumns = `id, chain_id, seq, ts, actor, action, decision, reason, snapshot, prev_signature, signature`

func (s *PostgresStore) Append(ctx context.Context, e *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.ChainID, e.Seq, e.Timestamp, e.Actor, e.Action, e.Decision,
		e.Reason, []byte(e.Snapshot), e.PrevSignature, e.Signature,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Head(ctx context.Context, chainID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM audit_entries
		WHERE chain_id = $1 ORDER BY seq DESC LIMIT 1`, chainID)
	return scanEntry(row)
}

func (s *PostgresStore) List(ctx context.Context, chainID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM audit_entries
		WHERE chain_id = $1 ORDER BY seq`, chainID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id domain.EntryID) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM audit_entries WHERE id = $1`, id)
	return scanEntry(row)
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e        Entry
		reason   sql.NullString
		snapshot []byte
	)
	err := row.Scan(
		&e.ID, &e.ChainID, &e.Seq, &e.Timestamp, &e.Actor, &e.Action,
		&e.Decision, &reason, &snapshot, &e.PrevSignature, &e.Signature,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	e.Reason = reason.String
	e.Snapshot = snapshot
	return &e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
