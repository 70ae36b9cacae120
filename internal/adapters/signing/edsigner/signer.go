// Package edsigner firma transacciones de custodia con Ed25519.
//
// La clave privada no se guarda: se deriva del secreto del actor con
// HKDF-SHA256 (salt = actorID). El mismo secreto produce siempre la misma
// clave, y la clave pública (hex) es la credencial que se registra para
// verificar.
package edsigner

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"custody-ledger/internal/ports/signing"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	Algorithm = "ed25519"
	hkdfInfo  = "custody-ledger/signing"
)

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
	priv, err := deriveKey(actorID, secret)
	if err != nil {
		return signing.Transaction{}, err
	}

	ts := s.now().UTC()
	hash, err := signing.Digest(actorID, kind, payload, ts)
	if err != nil {
		return signing.Transaction{}, err
	}

	sig := ed25519.Sign(priv, []byte(hash))
	pub := priv.Public().(ed25519.PublicKey)

	return signing.Transaction{
		ID:      uuid.NewString(),
		ActorID: actorID,
		Kind:    kind,
		Payload: payload,
		Signature: signing.Signature{
			Hash:      hash,
			Signature: hex.EncodeToString(sig),
			Algorithm: Algorithm,
			PublicKey: hex.EncodeToString(pub),
			Timestamp: ts,
		},
	}, nil
}

// Verify chequea el digest y la firma contra credential (clave pública hex).
// La public_key embebida en tx no se usa: la credencial viene del registro.
func (s *Signer) Verify(ctx context.Context, credential string, tx signing.Transaction) (bool, error) {
	if tx.Signature.Algorithm != Algorithm {
		return false, fmt.Errorf("%w: %q", signing.ErrUnsupportedAlgo, tx.Signature.Algorithm)
	}

	pub, err := hex.DecodeString(strings.TrimSpace(credential))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false, signing.ErrInvalidCredential
	}

	if err := signing.CheckDigest(tx); err != nil {
		return false, nil
	}

	sig, err := hex.DecodeString(tx.Signature.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(tx.Signature.Hash), sig), nil
}

// PublicKey devuelve la credencial (hex) que corresponde a actorID+secret.
func PublicKey(actorID, secret string) (string, error) {
	priv, err := deriveKey(strings.TrimSpace(actorID), secret)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(priv.Public().(ed25519.PublicKey)), nil
}

func deriveKey(actorID, secret string) (ed25519.PrivateKey, error) {
	if secret == "" {
		return nil, signing.ErrMissingSecret
	}
	if actorID == "" {
		return nil, signing.ErrMissingActor
	}

	seed := make([]byte, ed25519.SeedSize)
	r := hkdf.New(sha256.New, []byte(secret), []byte(actorID), []byte(hkdfInfo))
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
