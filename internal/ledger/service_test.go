package ledger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/platform/metrics"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	signer := NewSigner([]byte("test-ledger-master-key"))
	svc := NewService(store, signer, slog.New(slog.DiscardHandler), metrics.NewForTest())
	return svc, store
}

func appendN(t *testing.T, svc *Service, chainID string, n int) []*Entry {
	t.Helper()
	out := make([]*Entry, 0, n)
	for i := 0; i < n; i++ {
		entry, err := svc.Record(context.Background(), Record{
			ChainID:  chainID,
			Actor:    "agent-1",
			Action:   ActionPayment,
			Decision: "ALLOWED",
			Snapshot: map[string]any{"amount": 10.50 * float64(i+1), "service": "Water Bill"},
		})
		require.NoError(t, err)
		out = append(out, entry)
	}
	return out
}

func TestRecord_ChainsSequentially(t *testing.T) {
	svc, _ := newTestService(t)

	entries := appendN(t, svc, "chain-a", 3)

	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, genesisSignature, entries[0].PrevSignature)
	for i := 1; i < len(entries); i++ {
		assert.Equal(t, entries[i-1].Seq+1, entries[i].Seq)
		assert.Equal(t, entries[i-1].Signature, entries[i].PrevSignature)
	}
}

func TestRecord_ChainsAreIndependent(t *testing.T) {
	svc, _ := newTestService(t)

	a := appendN(t, svc, "chain-a", 2)
	b := appendN(t, svc, "chain-b", 1)

	assert.Equal(t, uint64(1), b[0].Seq)
	assert.NotEqual(t, a[0].Signature, b[0].Signature)
}

func TestVerify_ValidChain(t *testing.T) {
	svc, _ := newTestService(t)
	appendN(t, svc, "chain-a", 5)

	result, err := svc.Verify(context.Background(), "chain-a")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 5, result.Entries)
	assert.Nil(t, result.BrokenAt)
}

func TestVerify_EmptyChainIsValid(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Verify(context.Background(), "never-written")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Zero(t, result.Entries)
}

func TestVerify_DetectsTamperedField(t *testing.T) {
	svc, store := newTestService(t)
	entries := appendN(t, svc, "chain-a", 4)

	ok := store.Tamper(entries[1].ID, func(e *Entry) {
		e.Decision = "BLOCKED"
	})
	require.True(t, ok)

	result, err := svc.Verify(context.Background(), "chain-a")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.NotNil(t, result.BrokenAt)
	assert.Equal(t, uint64(2), *result.BrokenAt)
	// Everything from the tampered entry onward is suspect.
	assert.Len(t, result.BrokenIDs, 3)
}

func TestVerify_DetectsSingleByteInSnapshot(t *testing.T) {
	svc, store := newTestService(t)
	entries := appendN(t, svc, "chain-a", 2)

	store.Tamper(entries[0].ID, func(e *Entry) {
		raw := []byte(e.Snapshot)
		raw[len(raw)/2] ^= 0x01
		e.Snapshot = raw
	})

	result, err := svc.Verify(context.Background(), "chain-a")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, uint64(1), *result.BrokenAt)
}

func TestVerify_DetectsResignedEntryWithBrokenLink(t *testing.T) {
	svc, store := newTestService(t)
	entries := appendN(t, svc, "chain-a", 3)

	// Re-sign the middle entry after mutating it. The signature verifies in
	// isolation, but the successor's prev_signature no longer matches.
	signer := NewSigner([]byte("test-ledger-master-key"))
	store.Tamper(entries[1].ID, func(e *Entry) {
		e.Reason = "rewritten"
		require.NoError(t, signer.Sign(e))
	})

	result, err := svc.Verify(context.Background(), "chain-a")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, uint64(3), *result.BrokenAt)
}

func TestVerifyEntry_LooksUpChain(t *testing.T) {
	svc, _ := newTestService(t)
	entries := appendN(t, svc, "chain-a", 2)

	result, err := svc.VerifyEntry(context.Background(), entries[1].ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "chain-a", result.ChainID)
}

func TestExportJSON_EmbedsIntegrity(t *testing.T) {
	svc, _ := newTestService(t)
	appendN(t, svc, "chain-a", 2)

	doc, err := svc.ExportJSON(context.Background(), "chain-a")
	require.NoError(t, err)
	assert.Len(t, doc.Entries, 2)
	require.NotNil(t, doc.Integrity)
	assert.True(t, doc.Integrity.Valid)
}

func TestExportPDF_ProducesDocument(t *testing.T) {
	svc, _ := newTestService(t)
	appendN(t, svc, "chain-a", 2)

	pdf, err := svc.ExportPDF(context.Background(), "chain-a")
	require.NoError(t, err)
	assert.True(t, len(pdf) > 0)
	assert.Equal(t, "%PDF", string(pdf[:4]))
}
