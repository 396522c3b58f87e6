package escalation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"aegis/internal/liveness"
	"aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
)

// PostgresStore persists events in the escalation_events table. A partial
// unique index on fingerprint over non-terminal rows enforces the single
// active escalation per pending action; the version column backs the CAS.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `id, poa_id, senior_id, advocate_id, trigger_reason, service, amount, detail,
	status, version, code, code_expires_at, code_consumed, liveness_required, liveness,
	resolved_by, resolution_reason, created_at, resolved_at, fingerprint`

var terminalStatuses = []string{string(StatusApproved), string(StatusDenied), string(StatusExpired)}

func (s *PostgresStore) Create(ctx context.Context, e *Event) error {
	livenessJSON, err := marshalLiveness(e.Liveness)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO escalation_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		e.ID, nullableGrantID(e.GrantID), e.SeniorID, e.AdvocateID, e.TriggerReason,
		e.Service, e.Amount, e.Detail, e.Status, e.Version, e.Code, e.CodeExpiresAt,
		e.CodeConsumed, e.LivenessRequired, livenessJSON, nullString(e.ResolvedBy),
		nullString(e.ResolutionReason), e.CreatedAt, e.ResolvedAt, e.Fingerprint,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert escalation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.EventID) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM escalation_events WHERE id = $1`, id)
	return scanEvent(row)
}

func (s *PostgresStore) FindActiveByFingerprint(ctx context.Context, fingerprint string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM escalation_events
		WHERE fingerprint = $1 AND status != ALL($2)
		ORDER BY created_at DESC LIMIT 1`, fingerprint, pq.Array(terminalStatuses))
	return scanEvent(row)
}

func (s *PostgresStore) Update(ctx context.Context, e *Event, expectedVersion int64) error {
	livenessJSON, err := marshalLiveness(e.Liveness)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE escalation_events
		SET status = $3, version = version + 1, code_consumed = $4, liveness = $5,
			resolved_by = $6, resolution_reason = $7, resolved_at = $8
		WHERE id = $1 AND version = $2`,
		e.ID, expectedVersion, e.Status, e.CodeConsumed, livenessJSON,
		nullString(e.ResolvedBy), nullString(e.ResolutionReason), e.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("update escalation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update escalation: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	e.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) ListPending(ctx context.Context, advocateID string) ([]*Event, error) {
	return s.list(ctx, `
		SELECT `+eventColumns+` FROM escalation_events
		WHERE advocate_id = $1 AND status != ALL($2)
		ORDER BY created_at`, advocateID, pq.Array(terminalStatuses))
}

func (s *PostgresStore) ListOverdue(ctx context.Context, now time.Time) ([]*Event, error) {
	return s.list(ctx, `
		SELECT `+eventColumns+` FROM escalation_events
		WHERE code_expires_at < $1 AND status != ALL($2)`, now, pq.Array(terminalStatuses))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		e            Event
		grantID      sql.NullString
		livenessJSON []byte
		resolvedBy   sql.NullString
		resolution   sql.NullString
	)
	err := row.Scan(
		&e.ID, &grantID, &e.SeniorID, &e.AdvocateID, &e.TriggerReason, &e.Service,
		&e.Amount, &e.Detail, &e.Status, &e.Version, &e.Code, &e.CodeExpiresAt,
		&e.CodeConsumed, &e.LivenessRequired, &livenessJSON, &resolvedBy,
		&resolution, &e.CreatedAt, &e.ResolvedAt, &e.Fingerprint,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan escalation: %w", err)
	}
	if grantID.Valid {
		id, err := domain.ParseGrantID(grantID.String)
		if err != nil {
			return nil, fmt.Errorf("scan escalation grant id: %w", err)
		}
		e.GrantID = id
	}
	if len(livenessJSON) > 0 {
		var result liveness.Result
		if err := json.Unmarshal(livenessJSON, &result); err != nil {
			return nil, fmt.Errorf("scan escalation liveness: %w", err)
		}
		e.Liveness = &result
	}
	e.ResolvedBy = resolvedBy.String
	e.ResolutionReason = resolution.String
	return &e, nil
}

func marshalLiveness(r *liveness.Result) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal liveness result: %w", err)
	}
	return raw, nil
}

func nullableGrantID(id domain.GrantID) sql.NullString {
	return sql.NullString{String: id.String(), Valid: !id.IsNil()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
