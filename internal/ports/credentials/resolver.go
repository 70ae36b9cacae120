package credentials

import (
	"context"
	"errors"
)

var ErrUnknownActor = errors.New("credential not registered for actor")

// Resolver devuelve la credencial pública con la que se verifican
// las transacciones firmadas por un actor.
type Resolver interface {
	PublicCredential(ctx context.Context, actorID string) (string, error)
}

// Store agrega el alta de credenciales (PUT /me/credential).
type Store interface {
	Resolver
	Register(ctx context.Context, actorID, credential string) error
}
