package encryption

import (
	"context"
	"testing"

	"netwatch/internal/config"
)

func newLocalManager() *Manager {
	cfg := &config.Config{}
	cfg.KMS.Enabled = false
	return NewManager(cfg, nil)
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	m := newLocalManager()
	ctx := context.Background()

	field, err := m.EncryptField(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if len(field.Ciphertext) == 0 || len(field.WrappedDEK) == 0 {
		t.Fatal("empty ciphertext or wrapped key")
	}
	if string(field.Ciphertext) == "alice@example.com" {
		t.Fatal("plaintext stored unencrypted")
	}

	plaintext, err := m.DecryptField(ctx, field)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if plaintext != "alice@example.com" {
		t.Fatalf("roundtrip returned %q", plaintext)
	}
}

func TestEncryptProducesFreshCiphertexts(t *testing.T) {
	m := newLocalManager()
	ctx := context.Background()

	a, err := m.EncryptField(ctx, "same value")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	b, err := m.EncryptField(ctx, "same value")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if string(a.Ciphertext) == string(b.Ciphertext) {
		t.Fatal("identical ciphertexts for repeated plaintext")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	m := newLocalManager()
	ctx := context.Background()

	field, err := m.EncryptField(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	field.Ciphertext[len(field.Ciphertext)-1] ^= 0xff

	if _, err := m.DecryptField(ctx, field); err == nil {
		t.Fatal("tampered ciphertext decrypted")
	}
}
