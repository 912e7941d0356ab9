package crypto

import (
	"crypto/ed25519"
)

// Ed25519Signer signs digests with a fixed private key and reports a stable
// key identifier alongside each signature.
type Ed25519Signer struct {
	keyID string
	priv  ed25519.PrivateKey
}

// NewEd25519Signer wraps priv. An empty keyID is replaced with a fingerprint
// derived from the public key.
func NewEd25519Signer(keyID string, priv ed25519.PrivateKey) *Ed25519Signer {
	if keyID == "" {
		pub := priv.Public().(ed25519.PublicKey)
		keyID = "ed25519:" + DigestHex(pub)[:16]
	}
	return &Ed25519Signer{keyID: keyID, priv: priv}
}

// NewFileSigner loads the private key at path and wraps it as a signer.
func NewFileSigner(path, keyID string) (*Ed25519Signer, error) {
	priv, _, err := LoadEd25519PrivateKey(path)
	if err != nil {
		return nil, err
	}
	return NewEd25519Signer(keyID, priv), nil
}

func (s *Ed25519Signer) KeyID() string { return s.keyID }

func (s *Ed25519Signer) Public() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

func (s *Ed25519Signer) SignEd25519(digest []byte) ([]byte, error) {
	return SignEd25519(s.priv, digest)
}
