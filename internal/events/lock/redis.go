package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

// keyPrefix namespaces execution lock keys in Redis.
const keyPrefix = "eventrelay:lock:"

// Redis is a distributed keyed lock backed by the RedLock algorithm. Use it when
// several replicas run the dispatcher or the retry sweeper against the same database.
//
// The lock auto-expires after expiry so a crashed holder cannot block a record
// forever; expiry must exceed the longest listener attempt.
type Redis struct {
	redsync *redsync.Redsync
	expiry  time.Duration
}

// NewRedis creates a Redis lock on top of client.
func NewRedis(client goredislib.UniversalClient, expiry time.Duration) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	if expiry <= 0 {
		return nil, errors.New("lock expiry must be greater than 0")
	}

	return &Redis{
		redsync: redsync.New(goredis.NewPool(client)),
		expiry:  expiry,
	}, nil
}

// TryLock attempts to acquire key exactly once.
func (r *Redis) TryLock(ctx context.Context, key string) (Handle, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}

	mutex := r.redsync.NewMutex(
		keyPrefix+key,
		redsync.WithExpiry(r.expiry),
		redsync.WithTries(1),
	)

	if err := mutex.TryLockContext(ctx); err != nil {
		if isTaken(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("distributed lock: acquire %s: %w", key, err)
	}

	return &redisHandle{mutex: mutex}, true, nil
}

// WithLock runs fn while holding key.
func (r *Redis) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return withLock(ctx, r.TryLock, key, fn)
}

// isTaken reports whether err means the key is held elsewhere rather than an
// infrastructure failure.
func isTaken(err error) bool {
	if errors.Is(err, redsync.ErrFailed) {
		return true
	}

	var takenPtr *redsync.ErrTaken
	if errors.As(err, &takenPtr) {
		return true
	}

	var taken redsync.ErrTaken
	return errors.As(err, &taken)
}

type redisHandle struct {
	mutex *redsync.Mutex
}

// Unlock releases the distributed lock.
func (h *redisHandle) Unlock(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	if err != nil {
		return fmt.Errorf("distributed lock: unlock: %w", err)
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}

var _ Locker = (*Redis)(nil)
