package ledger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/hkdf"
)

// genesisSignature anchors the first entry of every chain.
const genesisSignature = "GENESIS"

// Signer seals entries with HMAC-SHA256. Each chain signs with its own key,
// derived from the master key via HKDF, so disclosing one chain's key does
// not expose the others.
type Signer struct {
	masterKey []byte
}

func NewSigner(masterKey []byte) *Signer {
	return &Signer{masterKey: masterKey}
}

// Sign computes the entry signature over the canonical entry content
// concatenated with the previous signature, and writes it onto the entry.
func (s *Signer) Sign(e *Entry) error {
	canonical, err := canonicalContent(e)
	if err != nil {
		return err
	}
	key, err := s.chainKey(e.ChainID)
	if err != nil {
		return err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(canonical)
	mac.Write([]byte(e.PrevSignature))
	e.Signature = hex.EncodeToString(mac.Sum(nil))
	return nil
}

// Verify recomputes the signature and compares in constant time.
func (s *Signer) Verify(e *Entry) (bool, error) {
	want := e.Signature
	cp := *e
	if err := s.Sign(&cp); err != nil {
		return false, err
	}
	return hmac.Equal([]byte(cp.Signature), []byte(want)), nil
}

func (s *Signer) chainKey(chainID string) ([]byte, error) {
	r := hkdf.New(sha256.New, s.masterKey, nil, []byte("aegis-ledger:"+chainID))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive chain key: %w", err)
	}
	return key, nil
}

// canonicalContent serializes the signed fields as RFC 8785 canonical JSON.
// The signature itself is excluded; PrevSignature is mixed in separately so
// the chain link is part of the MAC input.
func canonicalContent(e *Entry) ([]byte, error) {
	content := map[string]any{
		"log_id":    e.ID.String(),
		"chain_id":  e.ChainID,
		"seq":       e.Seq,
		"timestamp": e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		"actor":     e.Actor,
		"action":    e.Action,
		"decision":  e.Decision,
		"reason":    e.Reason,
	}
	if len(e.Snapshot) > 0 {
		content["snapshot"] = json.RawMessage(e.Snapshot)
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal entry content: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize entry content: %w", err)
	}
	return canonical, nil
}
