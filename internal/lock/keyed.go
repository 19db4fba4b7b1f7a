// Package lock provides per-key mutual exclusion with a bounded wait.
//
// Each key (an event id, a reservation id) gets its own weighted semaphore
// of size one. Entries are reference counted and dropped once nobody holds
// or waits on them, so the map only grows with the number of keys that are
// contended at the same time.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
	"golang.org/x/sync/semaphore"
)

// DefaultTimeout bounds how long Acquire waits when no timeout is configured.
const DefaultTimeout = 2 * time.Second

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Keyed serializes callers that use the same key. Callers with different
// keys never block each other.
type Keyed struct {
	name    string
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// NewKeyed returns a Keyed lock. name shows up in timeout errors.
func NewKeyed(name string, timeout time.Duration) *Keyed {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Keyed{
		name:    name,
		timeout: timeout,
		entries: make(map[string]*entry),
	}
}

// Acquire blocks until the lock for key is held, the configured timeout
// elapses, or ctx is done. On success the returned func releases the lock
// and must be called exactly once. Timeouts and cancellation are reported
// as model.ErrUnavailable.
func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	e := k.ref(key)

	waitCtx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		k.unref(key, e)
		op := "lock." + k.name
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &model.Error{Kind: model.KindUnavailable, Op: op, Message: "timed out waiting for " + key, Err: err}
		}
		return nil, model.Wrap(model.KindUnavailable, op, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			k.unref(key, e)
		})
	}, nil
}

// Len returns the number of keys currently held or waited on.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *Keyed) ref(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) unref(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
