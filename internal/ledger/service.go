package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"aegis/internal/platform/metrics"
	"aegis/pkg/domain"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/requestcontext"
)

// appendAttempts bounds the optimistic-append retry loop under contention.
const appendAttempts = 5

// VerifyResult reports the outcome of a chain walk.
type VerifyResult struct {
	ChainID   string           `json:"chain_id"`
	Valid     bool             `json:"valid"`
	Entries   int              `json:"entries"`
	BrokenAt  *uint64          `json:"broken_at_seq,omitempty"`
	BrokenIDs []domain.EntryID `json:"broken_entry_ids,omitempty"`
}

// Service seals and appends entries and verifies chain integrity.
type Service struct {
	store   Store
	signer  *Signer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewService(store Store, signer *Signer, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, signer: signer, logger: logger, metrics: m}
}

// Record seals and appends one entry. The sequence number and previous
// signature are read from the chain head; a concurrent append surfaces as
// sentinel.ErrConflict from the store and the head is re-read.
func (s *Service) Record(ctx context.Context, rec Record) (*Entry, error) {
	snapshot, err := marshalSnapshot(rec.Snapshot)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < appendAttempts; attempt++ {
		seq := uint64(1)
		prevSig := genesisSignature
		head, err := s.store.Head(ctx, rec.ChainID)
		switch {
		case err == nil:
			seq = head.Seq + 1
			prevSig = head.Signature
		case errors.Is(err, sentinel.ErrNotFound):
			// first entry of the chain
		default:
			s.metrics.LedgerAppendErrors.Inc()
			return nil, fmt.Errorf("read chain head: %w", err)
		}

		entry := &Entry{
			ID:            domain.NewEntryID(),
			ChainID:       rec.ChainID,
			Seq:           seq,
			Timestamp:     requestcontext.Now(ctx).UTC(),
			Actor:         rec.Actor,
			Action:        rec.Action,
			Decision:      rec.Decision,
			Reason:        rec.Reason,
			Snapshot:      snapshot,
			PrevSignature: prevSig,
		}
		if err := s.signer.Sign(entry); err != nil {
			s.metrics.LedgerAppendErrors.Inc()
			return nil, fmt.Errorf("sign entry: %w", err)
		}

		err = s.store.Append(ctx, entry)
		if err == nil {
			return entry, nil
		}
		if errors.Is(err, sentinel.ErrConflict) {
			continue
		}
		s.metrics.LedgerAppendErrors.Inc()
		return nil, fmt.Errorf("append entry: %w", err)
	}

	s.metrics.LedgerAppendErrors.Inc()
	return nil, dErrors.New(dErrors.CodeConflict, "audit append contention not resolved")
}

// Verify walks a chain from its first entry, recomputing every signature and
// checking each link against its predecessor. The first mismatch marks the
// chain invalid; every entry from that point is reported broken, because a
// re-signed suffix cannot be distinguished from a fabricated one.
func (s *Service) Verify(ctx context.Context, chainID string) (*VerifyResult, error) {
	entries, err := s.store.List(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("list chain: %w", err)
	}

	result := &VerifyResult{ChainID: chainID, Valid: true, Entries: len(entries)}
	prevSig := genesisSignature
	for i, e := range entries {
		ok, err := s.signer.Verify(e)
		if err != nil {
			return nil, err
		}
		if !ok || e.PrevSignature != prevSig || e.Seq != uint64(i)+1 {
			result.Valid = false
			seq := e.Seq
			result.BrokenAt = &seq
			for _, broken := range entries[i:] {
				result.BrokenIDs = append(result.BrokenIDs, broken.ID)
			}
			break
		}
		prevSig = e.Signature
	}

	if !result.Valid {
		s.metrics.ChainVerifyFailures.Inc()
		s.logger.Error("audit chain integrity failure",
			slog.String("chain_id", chainID),
			slog.Any("broken_at_seq", result.BrokenAt),
		)
	}
	return result, nil
}

// VerifyEntry verifies the chain containing the given entry.
func (s *Service) VerifyEntry(ctx context.Context, id domain.EntryID) (*VerifyResult, error) {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "audit entry not found")
		}
		return nil, err
	}
	return s.Verify(ctx, entry.ChainID)
}

// List returns a chain's entries in order.
func (s *Service) List(ctx context.Context, chainID string) ([]*Entry, error) {
	return s.store.List(ctx, chainID)
}

func marshalSnapshot(snapshot map[string]any) (json.RawMessage, error) {
	if len(snapshot) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return raw, nil
}
