package odin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"custody-ledger/internal/platform/httpclient"
	"custody-ledger/internal/ports/auth"
)

var (
	ErrOdinNotConfigured = errors.New("odin client not configured")
	ErrOdinUnauthorized  = errors.New("odin unauthorized")
	ErrOdinUpstream      = errors.New("odin upstream error")
)

// Config del cliente Odin (IAM compartido de la red de custodia).
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	http   *httpclient.Client
	apiKey string
}

func NewClient(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc, err := httpclient.NewWithBaseURL(strings.TrimSpace(cfg.BaseURL), timeout)
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	return &Client{http: hc.WithAPIKey(apiKey), apiKey: apiKey}, nil
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.http != nil && c.http.BaseURL != "" && c.apiKey != ""
}

type verifyResponse struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
	Email   string `json:"email"`
}

// VerifyToken: POST /v1/tokens/verify con el token en body y en Authorization.
func (c *Client) VerifyToken(ctx context.Context, token string) (auth.Claims, error) {
	if !c.IsConfigured() {
		return auth.Claims{}, ErrOdinNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrOdinUnauthorized
	}

	var out verifyResponse
	err := c.http.DoJSON(ctx, http.MethodPost, "/v1/tokens/verify",
		map[string]string{"Authorization": "Bearer " + token},
		map[string]string{"token": token},
		&out,
	)
	switch {
	case err == nil:
	case httpclient.IsStatus(err, http.StatusUnauthorized), httpclient.IsStatus(err, http.StatusForbidden):
		return auth.Claims{}, ErrOdinUnauthorized
	default:
		return auth.Claims{}, fmt.Errorf("%w: %v", ErrOdinUpstream, err)
	}

	actorID := strings.TrimSpace(out.ActorID)
	if actorID == "" {
		return auth.Claims{}, errors.New("odin response missing actor_id")
	}

	return auth.Claims{
		ActorID: actorID,
		Role:    strings.TrimSpace(out.Role),
		Email:   strings.TrimSpace(out.Email),
	}, nil
}
