package inflight

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy reports that another holder owns the key.
var ErrBusy = errors.New("inflight: operation already in progress")

// Guard admits at most one holder per key. The returned release func must be
// called exactly once when the guarded operation finishes.
type Guard interface {
	TryAcquire(ctx context.Context, key string) (release func(), err error)
}

// Local guards keys within one process.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryAcquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, ErrBusy
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
