package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"aegis/pkg/requestcontext"
)

// ExportDocument is the court-ready JSON rendering of one chain: the entries
// plus an integrity attestation computed at export time.
type ExportDocument struct {
	ChainID    string        `json:"chain_id"`
	ExportedAt time.Time     `json:"exported_at"`
	Integrity  *VerifyResult `json:"integrity"`
	Entries    []*Entry      `json:"entries"`
}

// ExportJSON renders a chain with its verification result embedded.
func (s *Service) ExportJSON(ctx context.Context, chainID string) (*ExportDocument, error) {
	entries, err := s.store.List(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("list chain: %w", err)
	}
	integrity, err := s.Verify(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return &ExportDocument{
		ChainID:    chainID,
		ExportedAt: requestcontext.Now(ctx).UTC(),
		Integrity:  integrity,
		Entries:    entries,
	}, nil
}

// ExportPDF renders the chain as a printable attestation document.
func (s *Service) ExportPDF(ctx context.Context, chainID string) ([]byte, error) {
	doc, err := s.ExportJSON(ctx, chainID)
	if err != nil {
		return nil, err
	}

	lines := []string{
		"AUDIT LEDGER ATTESTATION",
		"",
		fmt.Sprintf("Chain:       %s", doc.ChainID),
		fmt.Sprintf("Exported:    %s", doc.ExportedAt.Format(time.RFC3339)),
		fmt.Sprintf("Entries:     %d", len(doc.Entries)),
		fmt.Sprintf("Chain valid: %t", doc.Integrity.Valid),
		"",
	}
	for _, e := range doc.Entries {
		lines = append(lines,
			fmt.Sprintf("#%d  %s  %s", e.Seq, e.Timestamp.Format(time.RFC3339), e.Action),
			fmt.Sprintf("    actor: %s  decision: %s", e.Actor, e.Decision),
		)
		if e.Reason != "" {
			lines = append(lines, fmt.Sprintf("    reason: %s", e.Reason))
		}
		lines = append(lines, fmt.Sprintf("    signature: %s", e.Signature), "")
	}
	return renderPDF(lines), nil
}

// marshalIndent is a convenience for handlers writing export documents.
func (d *ExportDocument) marshalIndent() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
