package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"custody-ledger/internal/ports/auth"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrSecretRequired = errors.New("jwt secret required")
	ErrMissingActor   = errors.New("token missing actor_id")
)

// Verifier implementa auth.AuthVerifier con tokens HS256 firmados con un
// secreto compartido. Claims esperados: actor_id, role, email (opcional).
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

func NewVerifier(secret, issuer string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretRequired
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		leeway: 30 * time.Second,
	}, nil
}

type actorClaims struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty"`
	Email   string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var c actorClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("jwtauth: parse token: %w", err)
	}

	actorID := strings.TrimSpace(c.ActorID)
	if actorID == "" {
		actorID = strings.TrimSpace(c.Subject)
	}
	if actorID == "" {
		return auth.Claims{}, ErrMissingActor
	}

	return auth.Claims{
		ActorID: actorID,
		Role:    strings.TrimSpace(c.Role),
		Email:   strings.TrimSpace(c.Email),
	}, nil
}

// Issue firma un token para claims. Lo usan los tests y el tooling de dev.
func (v *Verifier) Issue(claims auth.Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	c := actorClaims{
		ActorID: claims.ActorID,
		Role:    claims.Role,
		Email:   claims.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.ActorID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}
