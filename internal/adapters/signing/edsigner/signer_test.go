package edsigner

import (
	"context"
	"errors"
	"testing"
	"time"

	"custody-ledger/internal/ports/signing"
)

func TestSigner_SignAndVerify(t *testing.T) {
	s := New()
	s.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 123456789, time.UTC) }

	tx, err := s.Sign(context.Background(), "farmer-1", "s3cret", "INITIAL_CUSTODY", map[string]any{
		"batchId":    "B1",
		"conditions": map[string]any{"temperature": 21.5},
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if tx.ID == "" || tx.Signature.Algorithm != Algorithm || tx.Signature.Hash == "" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	pub, err := PublicKey("farmer-1", "s3cret")
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	if pub != tx.Signature.PublicKey {
		t.Fatalf("derived key must be deterministic")
	}

	ok, err := s.Verify(context.Background(), pub, tx)
	if err != nil || !ok {
		t.Fatalf("expected valid signature, got ok=%v err=%v", ok, err)
	}
}

func TestSigner_VerifyRejectsTamperingAndWrongKey(t *testing.T) {
	s := New()
	tx, err := s.Sign(context.Background(), "A", "secret-a", "CUSTODY_TRANSFER", map[string]any{"toCustodian": "B"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	other, _ := PublicKey("A", "another-secret")
	if ok, _ := s.Verify(context.Background(), other, tx); ok {
		t.Fatalf("signature must not verify with a different key")
	}

	// mismo secreto, otro actor => otra clave
	otherActor, _ := PublicKey("B", "secret-a")
	if otherActor == tx.Signature.PublicKey {
		t.Fatalf("actor id must be part of the derivation")
	}

	tx.Payload["toCustodian"] = "X"
	if ok, _ := s.Verify(context.Background(), tx.Signature.PublicKey, tx); ok {
		t.Fatalf("tampered payload must not verify")
	}
}

func TestSigner_Errors(t *testing.T) {
	s := New()

	if _, err := s.Sign(context.Background(), "A", "", "K", nil); !errors.Is(err, signing.ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	if _, err := s.Sign(context.Background(), " ", "x", "K", nil); !errors.Is(err, signing.ErrMissingActor) {
		t.Fatalf("expected ErrMissingActor, got %v", err)
	}

	tx, _ := s.Sign(context.Background(), "A", "x", "K", nil)
	if _, err := s.Verify(context.Background(), "not-hex", tx); !errors.Is(err, signing.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}

	tx.Signature.Algorithm = "hmac-sha256"
	if _, err := s.Verify(context.Background(), tx.Signature.PublicKey, tx); !errors.Is(err, signing.ErrUnsupportedAlgo) {
		t.Fatalf("expected ErrUnsupportedAlgo, got %v", err)
	}
}
