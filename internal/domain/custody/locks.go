package custody

import (
	"context"
	"sync"
)

// localLocker es un mutex por batchID dentro del proceso.
// Las entradas se liberan cuando no queda nadie esperando.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*batchLock
}

type batchLock struct {
	ch   chan struct{}
	refs int
}

func newLocalLocker() *localLocker {
	return &localLocker{locks: map[string]*batchLock{}}
}

func (l *localLocker) LockBatch(ctx context.Context, batchID string) (func(), error) {
	l.mu.Lock()
	bl, ok := l.locks[batchID]
	if !ok {
		bl = &batchLock{ch: make(chan struct{}, 1)}
		l.locks[batchID] = bl
	}
	bl.refs++
	l.mu.Unlock()

	select {
	case bl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(batchID, bl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-bl.ch
			l.release(batchID, bl)
		})
	}, nil
}

func (l *localLocker) release(batchID string, bl *batchLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bl.refs--
	if bl.refs == 0 {
		delete(l.locks, batchID)
	}
}
