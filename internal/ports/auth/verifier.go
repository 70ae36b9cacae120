package auth

import "context"

// AuthVerifier valida un bearer token y devuelve los claims del actor.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
