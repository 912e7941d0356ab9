package audit

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/davidahmann/proctor/internal/crypto"
)

type testSigner struct {
	keyID string
	priv  ed25519.PrivateKey
}

func (s *testSigner) KeyID() string { return s.keyID }

func (s *testSigner) SignEd25519(digest []byte) ([]byte, error) {
	return crypto.SignEd25519(s.priv, digest)
}

func newTestSigner(t *testing.T) (*testSigner, ed25519.PublicKey) {
	t.Helper()
	seed := bytes.Repeat([]byte{7}, ed25519.SeedSize)
	priv, pub, err := crypto.KeyPairFromSeed(seed)
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	return &testSigner{keyID: "export-key-1", priv: priv}, pub
}

func TestExportBundleUnsigned(t *testing.T) {
	chain, _ := newTestChain(t)
	if _, err := chain.Append(EntryStartup, "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	bundle, err := chain.ExportBundle(0, 0, "", nil)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(bundle.Entries) != 1 || bundle.Sig != nil || bundle.KeyID != "" {
		t.Fatalf("unsigned bundle = %+v", bundle)
	}
}

func TestExportBundleSignAndVerify(t *testing.T) {
	chain, _ := newTestChain(t)
	for i := 0; i < 3; i++ {
		if _, err := chain.Append(EntryPipelineReceived, "run-1", map[string]any{"step": i}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	signer, pub := newTestSigner(t)
	bundle, err := chain.ExportBundle(0, 0, "", signer)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if bundle.KeyID != "export-key-1" || len(bundle.Sig) == 0 {
		t.Fatalf("bundle not signed: %+v", bundle)
	}

	ok, err := VerifyBundle(bundle, pub)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("signature should verify")
	}
}

func TestExportBundleVerifyRejectsTamper(t *testing.T) {
	chain, _ := newTestChain(t)
	for i := 0; i < 3; i++ {
		if _, err := chain.Append(EntryPipelineReceived, "run-1", map[string]any{"step": i}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	signer, pub := newTestSigner(t)
	bundle, err := chain.ExportBundle(0, 0, "", signer)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	bundle.Entries[1].Hash = "sha256:forged"
	ok, err := VerifyBundle(bundle, pub)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("tampered bundle should not verify")
	}
}
