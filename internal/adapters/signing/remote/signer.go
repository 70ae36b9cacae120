// Package remote delega firma y verificación a un servicio de firmas
// externo (HSM/KMS detrás de una API JSON).
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"custody-ledger/internal/platform/httpclient"
	"custody-ledger/internal/ports/signing"
)

type Signer struct {
	http *httpclient.Client
}

func New(baseURL, apiKey string, timeout time.Duration) (*Signer, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("remote signer: base url required")
	}
	c, err := httpclient.NewWithBaseURL(baseURL, timeout)
	if err != nil {
		return nil, err
	}
	return &Signer{http: c.WithAPIKey(apiKey)}, nil
}

type signRequest struct {
	ActorID string         `json:"actor_id"`
	Secret  string         `json:"secret"`
	Kind    string         `json:"event_kind"`
	Payload map[string]any `json:"payload"`
}

type verifyRequest struct {
	Credential  string              `json:"credential"`
	Transaction signing.Transaction `json:"transaction"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

func (s *Signer) Sign(ctx context.Context, actorID, secret, kind string, payload map[string]any) (signing.Transaction, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return signing.Transaction{}, signing.ErrMissingActor
	}
	if secret == "" {
		return signing.Transaction{}, signing.ErrMissingSecret
	}

	var tx signing.Transaction
	err := s.http.DoJSON(ctx, http.MethodPost, "/v1/sign", nil, signRequest{
		ActorID: actorID,
		Secret:  secret,
		Kind:    kind,
		Payload: payload,
	}, &tx)
	if err != nil {
		return signing.Transaction{}, fmt.Errorf("remote sign: %w", err)
	}

	// el servicio firma lo que le mandamos; si el hash no cierra, no lo aceptamos
	if tx.ActorID != actorID || tx.Kind != kind {
		return signing.Transaction{}, fmt.Errorf("remote sign: transaction does not match request")
	}
	if err := signing.CheckDigest(tx); err != nil {
		return signing.Transaction{}, fmt.Errorf("remote sign: %w", err)
	}
	return tx, nil
}

func (s *Signer) Verify(ctx context.Context, credential string, tx signing.Transaction) (bool, error) {
	if err := signing.CheckDigest(tx); err != nil {
		return false, nil
	}

	var out verifyResponse
	err := s.http.DoJSON(ctx, http.MethodPost, "/v1/verify", nil, verifyRequest{
		Credential:  credential,
		Transaction: tx,
	}, &out)
	if err != nil {
		return false, fmt.Errorf("remote verify: %w", err)
	}
	return out.Valid, nil
}
