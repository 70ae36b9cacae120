package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultCacheTTL = 5 * time.Minute

type cachedCredential struct {
	value   string
	fetched time.Time
}

// Resolver implementa credentials.Store sobre el registro remoto.
// Cachea por actor y colapsa lookups concurrentes del mismo actor.
type Resolver struct {
	client *Client
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedCredential
}

func NewResolver(client *Client, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Resolver{
		client: client,
		ttl:    ttl,
		now:    time.Now,
		cache:  map[string]cachedCredential{},
	}
}

func (r *Resolver) PublicCredential(ctx context.Context, actorID string) (string, error) {
	actorID = strings.TrimSpace(actorID)

	if v, ok := r.cached(actorID); ok {
		return v, nil
	}

	v, err, _ := r.group.Do(actorID, func() (any, error) {
		cred, err := r.client.GetCredential(ctx, actorID)
		if err != nil {
			return "", err
		}
		r.store(actorID, cred)
		return cred, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) Register(ctx context.Context, actorID, credential string) error {
	actorID = strings.TrimSpace(actorID)
	if err := r.client.PutCredential(ctx, actorID, credential); err != nil {
		return err
	}
	r.store(actorID, credential)
	return nil
}

func (r *Resolver) cached(actorID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cache[actorID]
	if !ok || r.now().Sub(c.fetched) > r.ttl {
		return "", false
	}
	return c.value, true
}

func (r *Resolver) store(actorID, cred string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[actorID] = cachedCredential{value: cred, fetched: r.now()}
}
