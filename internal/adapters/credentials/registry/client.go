package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"custody-ledger/internal/platform/httpclient"
	"custody-ledger/internal/ports/credentials"
)

var (
	ErrRegistryNotConfigured = errors.New("credential registry not configured")
	ErrRegistryUnauthorized  = errors.New("credential registry unauthorized")
	ErrRegistryUpstream      = errors.New("credential registry upstream error")
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client habla con el registro de identidades de la red (actor -> credencial pública).
type Client struct {
	http       *httpclient.Client
	configured bool
}

func NewClient(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	base := strings.TrimSpace(cfg.BaseURL)

	hc, err := httpclient.NewWithBaseURL(base, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		http:       hc.WithAPIKey(cfg.APIKey),
		configured: base != "",
	}, nil
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.configured
}

type credentialBody struct {
	ActorID    string `json:"actor_id"`
	Credential string `json:"credential"`
}

// GetCredential: GET /v1/actors/{id}/credential.
func (c *Client) GetCredential(ctx context.Context, actorID string) (string, error) {
	if !c.IsConfigured() {
		return "", ErrRegistryNotConfigured
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return "", errors.New("actorID required")
	}

	var out credentialBody
	err := c.http.DoJSON(ctx, http.MethodGet, "/v1/actors/"+url.PathEscape(actorID)+"/credential", nil, nil, &out)
	if err != nil {
		return "", mapError(err)
	}

	cred := strings.TrimSpace(out.Credential)
	if cred == "" {
		return "", credentials.ErrUnknownActor
	}
	return cred, nil
}

// PutCredential: PUT /v1/actors/{id}/credential.
func (c *Client) PutCredential(ctx context.Context, actorID, credential string) error {
	if !c.IsConfigured() {
		return ErrRegistryNotConfigured
	}
	err := c.http.DoJSON(ctx, http.MethodPut, "/v1/actors/"+url.PathEscape(actorID)+"/credential", nil, credentialBody{
		ActorID:    actorID,
		Credential: credential,
	}, nil)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func mapError(err error) error {
	switch {
	case httpclient.IsStatus(err, http.StatusNotFound):
		return credentials.ErrUnknownActor
	case httpclient.IsStatus(err, http.StatusUnauthorized), httpclient.IsStatus(err, http.StatusForbidden):
		return ErrRegistryUnauthorized
	default:
		return fmt.Errorf("%w: %v", ErrRegistryUpstream, err)
	}
}
