package audit

import (
	"github.com/davidahmann/proctor/internal/crypto"
)

// Signer signs export bundle digests so external tooling can check that an
// export came from this process's signing key.
type Signer interface {
	KeyID() string
	SignEd25519(digest []byte) ([]byte, error)
}

// Bundle is a signed, ordered slice of the chain handed to external tooling.
type Bundle struct {
	From     uint64  `json:"from"`
	To       uint64  `json:"to"`
	HeadHash string  `json:"head_hash"`
	Entries  []Entry `json:"entries"`
	KeyID    string  `json:"key_id,omitempty"`
	Sig      []byte  `json:"sig,omitempty"`
}

// ExportBundle exports entries and, when a signer is configured, signs a
// digest over the bundle's entry hashes and chain head.
func (c *Chain) ExportBundle(from, to uint64, entryType EntryType, signer Signer) (Bundle, error) {
	entries, err := c.Export(from, to, entryType)
	if err != nil {
		return Bundle{}, err
	}

	_, head := c.Head()
	bundle := Bundle{From: from, To: to, HeadHash: head, Entries: entries}

	if signer == nil {
		return bundle, nil
	}

	hashes := make([]string, 0, len(entries))
	for _, entry := range entries {
		hashes = append(hashes, entry.Hash)
	}
	view := map[string]any{
		"from":      from,
		"to":        to,
		"head_hash": head,
		"hashes":    hashes,
	}
	canonical, err := crypto.Canonicalize(view)
	if err != nil {
		return Bundle{}, err
	}

	sig, err := signer.SignEd25519(crypto.DigestBytes(canonical))
	if err != nil {
		return Bundle{}, err
	}
	bundle.KeyID = signer.KeyID()
	bundle.Sig = sig
	return bundle, nil
}

// VerifyBundle checks a bundle signature against a public key digest view
// identical to the one ExportBundle signs.
func VerifyBundle(bundle Bundle, publicKey []byte) (bool, error) {
	hashes := make([]string, 0, len(bundle.Entries))
	for _, entry := range bundle.Entries {
		hashes = append(hashes, entry.Hash)
	}
	view := map[string]any{
		"from":      bundle.From,
		"to":        bundle.To,
		"head_hash": bundle.HeadHash,
		"hashes":    hashes,
	}
	canonical, err := crypto.Canonicalize(view)
	if err != nil {
		return false, err
	}
	return crypto.VerifyEd25519(publicKey, crypto.DigestBytes(canonical), bundle.Sig)
}
