package signing

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func signedFixture(t *testing.T, payload map[string]any) Transaction {
	t.Helper()

	ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	hash, err := Digest("A", "CUSTODY_TRANSFER", payload, ts)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	return Transaction{
		ID:        "tx-1",
		ActorID:   "A",
		Kind:      "CUSTODY_TRANSFER",
		Payload:   payload,
		Signature: Signature{Hash: hash, Timestamp: ts},
	}
}

func TestUnmarshal_KeepsLargeIntegerDigits(t *testing.T) {
	tx := signedFixture(t, map[string]any{"serial": int64(1<<53 + 1)})

	raw, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Transaction
	if err := Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := CheckDigest(decoded); err != nil {
		t.Fatalf("digest must survive the round-trip, got %v", err)
	}

	// con json.Unmarshal el entero pasa a float64 y el digest cambia
	var lossy Transaction
	if err := json.Unmarshal(raw, &lossy); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if err := CheckDigest(lossy); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("expected float64 decoding to break the digest, got %v", err)
	}
}

func TestCloneMap_IsDeep(t *testing.T) {
	src := map[string]any{
		"lab":     map[string]any{"ok": true},
		"samples": []any{map[string]any{"id": "s1"}},
	}

	cp := CloneMap(src)
	cp["lab"].(map[string]any)["ok"] = false
	cp["samples"].([]any)[0].(map[string]any)["id"] = "s2"
	cp["extra"] = 1

	if src["lab"].(map[string]any)["ok"] != true {
		t.Fatal("nested map shared with the copy")
	}
	if src["samples"].([]any)[0].(map[string]any)["id"] != "s1" {
		t.Fatal("nested slice shared with the copy")
	}
	if _, ok := src["extra"]; ok {
		t.Fatal("top-level map shared with the copy")
	}
	if CloneMap(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestTransactionClone(t *testing.T) {
	tx := signedFixture(t, map[string]any{"moisture": 12})

	cp := tx.Clone()
	cp.Payload["moisture"] = 99

	if err := CheckDigest(tx); err != nil {
		t.Fatalf("original must keep its digest, got %v", err)
	}
}
