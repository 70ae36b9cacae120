package jwtauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"custody-ledger/internal/ports/auth"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v, err := NewVerifier("top-secret", "custody-ledger")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	tok, err := v.Issue(auth.Claims{ActorID: "processor-1", Role: "processor"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	c, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.ActorID != "processor-1" || c.Role != "processor" {
		t.Fatalf("unexpected claims: %+v", c)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	v, _ := NewVerifier("top-secret", "custody-ledger")
	other, _ := NewVerifier("another-secret", "custody-ledger")
	wrongIssuer, _ := NewVerifier("top-secret", "someone-else")

	expired, _ := v.Issue(auth.Claims{ActorID: "A"}, -time.Hour)
	if _, err := v.Verify(context.Background(), expired); err == nil {
		t.Fatalf("expired token must fail")
	}

	forged, _ := other.Issue(auth.Claims{ActorID: "A"}, time.Hour)
	if _, err := v.Verify(context.Background(), forged); err == nil {
		t.Fatalf("token signed with another secret must fail")
	}

	foreign, _ := wrongIssuer.Issue(auth.Claims{ActorID: "A"}, time.Hour)
	if _, err := v.Verify(context.Background(), foreign); err == nil {
		t.Fatalf("token from another issuer must fail")
	}

	// alg none
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"actor_id": "A",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := v.Verify(context.Background(), unsigned); err == nil {
		t.Fatalf("unsigned token must fail")
	}

	noActor, _ := v.Issue(auth.Claims{}, time.Hour)
	if _, err := v.Verify(context.Background(), noActor); !errors.Is(err, ErrMissingActor) {
		t.Fatalf("expected ErrMissingActor, got %v", err)
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	if _, err := NewVerifier(" ", ""); !errors.Is(err, ErrSecretRequired) {
		t.Fatalf("expected ErrSecretRequired, got %v", err)
	}
}
