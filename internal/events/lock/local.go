package lock

import (
	"context"
	"sync"
)

// Local is an in-process keyed lock. It guards attempts within a single process and
// is the default when only one replica runs the dispatcher and the sweeper.
type Local struct {
	mu    sync.Mutex
	held  map[string]uint64
	token uint64
}

// NewLocal creates an empty Local lock.
func NewLocal() *Local {
	return &Local{held: make(map[string]uint64)}
}

// TryLock acquires key if it is free.
func (l *Local) TryLock(ctx context.Context, key string) (Handle, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}

	l.token++
	l.held[key] = l.token

	return &localHandle{owner: l, key: key, token: l.token}, true, nil
}

// WithLock runs fn while holding key.
func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return withLock(ctx, l.TryLock, key, fn)
}

// Held reports whether key is currently locked.
func (l *Local) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, busy := l.held[key]
	return busy
}

type localHandle struct {
	owner *Local
	key   string
	token uint64
}

// Unlock releases the key if this handle still owns it.
func (h *localHandle) Unlock(ctx context.Context) error {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()

	if current, ok := h.owner.held[h.key]; !ok || current != h.token {
		return ErrNotHeld
	}

	delete(h.owner.held, h.key)
	return nil
}

var _ Locker = (*Local)(nil)
