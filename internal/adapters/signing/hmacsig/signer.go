// Package hmacsig es el esquema legacy: la "firma" es HMAC-SHA256 del hash
// con el secreto del actor. No da no-repudio (quien verifica conoce el
// secreto); se mantiene para ledgers firmados antes de Ed25519.
package hmacsig

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"custody-ledger/internal/ports/signing"

	"github.com/google/uuid"
)

const Algorithm = "hmac-sha256"

type Signer struct {
	now func() time.Time
}

func New() *Signer {
	return &Signer{now: time.Now}
}

func (s *Signer) Sign(ctx context.Context, actorID, secret, kind string, payload map[string]any) (signing.Transaction, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return signing.Transaction{}, signing.ErrMissingActor
	}
	if secret == "" {
		return signing.Transaction{}, signing.ErrMissingSecret
	}

	ts := s.now().UTC()
	hash, err := signing.Digest(actorID, kind, payload, ts)
	if err != nil {
		return signing.Transaction{}, err
	}

	return signing.Transaction{
		ID:      uuid.NewString(),
		ActorID: actorID,
		Kind:    kind,
		Payload: payload,
		Signature: signing.Signature{
			Hash:      hash,
			Signature: mac(secret, hash),
			Algorithm: Algorithm,
			Timestamp: ts,
		},
	}, nil
}

// Verify: credential es el secreto compartido del actor.
func (s *Signer) Verify(ctx context.Context, credential string, tx signing.Transaction) (bool, error) {
	if tx.Signature.Algorithm != Algorithm {
		return false, fmt.Errorf("%w: %q", signing.ErrUnsupportedAlgo, tx.Signature.Algorithm)
	}
	if credential == "" {
		return false, signing.ErrInvalidCredential
	}
	if err := signing.CheckDigest(tx); err != nil {
		return false, nil
	}

	want, err := hex.DecodeString(mac(credential, tx.Signature.Hash))
	if err != nil {
		return false, err
	}
	got, err := hex.DecodeString(tx.Signature.Signature)
	if err != nil {
		return false, nil
	}
	return hmac.Equal(want, got), nil
}

func mac(secret, hash string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(hash))
	return hex.EncodeToString(m.Sum(nil))
}
