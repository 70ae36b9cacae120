package memory

import (
	"context"
	"strings"
	"sync"

	"custody-ledger/internal/ports/credentials"
)

type credentialRepo struct {
	mu      sync.RWMutex
	byActor map[string]string
}

// NewCredentialRepo devuelve un credentials.Store en memoria.
// seed permite precargar credenciales (actorID -> credencial).
func NewCredentialRepo(seed map[string]string) credentials.Store {
	r := &credentialRepo{byActor: make(map[string]string, len(seed))}
	for k, v := range seed {
		r.byActor[k] = v
	}
	return r
}

func (r *credentialRepo) PublicCredential(ctx context.Context, actorID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byActor[strings.TrimSpace(actorID)]
	if !ok {
		return "", credentials.ErrUnknownActor
	}
	return c, nil
}

func (r *credentialRepo) Register(ctx context.Context, actorID, credential string) error {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return credentials.ErrUnknownActor
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byActor[actorID] = credential
	return nil
}
