// Package ledger keeps the held-seat count of every event and enforces
// held <= capacity.
//
// All mutations of one event go through Do, which holds that event's lock
// while the caller's function runs. Changes made through the Tx are staged
// and only applied when the function returns nil, so a caller can persist
// inside the function and have the counter move only if persistence
// succeeded.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/lock"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
)

// Slot is the ledger's view of one event.
type Slot struct {
	EventID  string
	Status   model.EventStatus
	Capacity int
	Held     int
}

// Available returns the number of seats that can still be reserved.
func (s Slot) Available() int {
	if s.Held >= s.Capacity {
		return 0
	}
	return s.Capacity - s.Held
}

// Ledger is safe for concurrent use.
type Ledger struct {
	locks *lock.Keyed

	mu    sync.RWMutex
	slots map[string]*Slot
}

// New returns an empty Ledger whose per-event locks wait at most lockTimeout.
func New(lockTimeout time.Duration) *Ledger {
	return &Ledger{
		locks: lock.NewKeyed("event", lockTimeout),
		slots: make(map[string]*Slot),
	}
}

// Track registers an event with the ledger, replacing any previous slot.
func (l *Ledger) Track(e model.Event) {
	l.mu.Lock()
	l.slots[e.ID] = &Slot{
		EventID:  e.ID,
		Status:   e.Status,
		Capacity: e.Capacity,
		Held:     e.Held,
	}
	l.mu.Unlock()
}

// Snapshot returns a copy of the event's slot.
func (l *Ledger) Snapshot(eventID string) (Slot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.slots[eventID]
	if !ok {
		return Slot{}, false
	}
	return *s, true
}

// Held returns held(event), or 0 for unknown events.
func (l *Ledger) Held(eventID string) int {
	s, _ := l.Snapshot(eventID)
	return s.Held
}

// Do runs fn while holding the event's lock. Changes staged on the Tx are
// applied atomically when fn returns nil and discarded otherwise.
func (l *Ledger) Do(ctx context.Context, eventID string, fn func(tx *Tx) error) error {
	release, err := l.locks.Acquire(ctx, eventID)
	if err != nil {
		return err
	}
	defer release()

	cur, ok := l.Snapshot(eventID)
	if !ok {
		return model.E(model.KindNotFound, "ledger", "event %s not tracked", eventID)
	}

	tx := &Tx{slot: cur}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}

	l.mu.Lock()
	if s, ok := l.slots[eventID]; ok {
		*s = tx.slot
	}
	l.mu.Unlock()
	return nil
}

// TryReserveSeat increments held(event) if the event is published and has
// a free seat.
func (l *Ledger) TryReserveSeat(ctx context.Context, eventID string) error {
	return l.Do(ctx, eventID, func(tx *Tx) error { return tx.TryReserveSeat() })
}

// ReleaseSeat decrements held(event). It reports false when held was
// already zero and nothing changed.
func (l *Ledger) ReleaseSeat(ctx context.Context, eventID string) (bool, error) {
	var released bool
	err := l.Do(ctx, eventID, func(tx *Tx) error {
		released = tx.ReleaseSeat()
		return nil
	})
	return released, err
}

// SetCapacity changes the event's capacity unless it would drop below held.
func (l *Ledger) SetCapacity(ctx context.Context, eventID string, capacity int) error {
	return l.Do(ctx, eventID, func(tx *Tx) error { return tx.SetCapacity(capacity) })
}

// SetStatus changes the event's status.
func (l *Ledger) SetStatus(ctx context.Context, eventID string, status model.EventStatus) error {
	return l.Do(ctx, eventID, func(tx *Tx) error {
		tx.SetStatus(status)
		return nil
	})
}

// Tx stages changes to one event's slot. It is only valid inside Do.
type Tx struct {
	slot  Slot
	dirty bool
}

// Slot returns the slot as seen by the transaction, staged changes included.
func (t *Tx) Slot() Slot {
	return t.slot
}

// TryReserveSeat stages held+1. It fails with ErrNotBookable when the event
// is not published and ErrFull when held has reached capacity.
func (t *Tx) TryReserveSeat() error {
	switch t.slot.Status {
	case model.EventPublished:
	case model.EventCanceled:
		return model.E(model.KindNotBookable, "ledger.reserve", "event %s is canceled", t.slot.EventID)
	default:
		return model.E(model.KindNotBookable, "ledger.reserve", "event %s is not published", t.slot.EventID)
	}
	if t.slot.Held >= t.slot.Capacity {
		return model.E(model.KindFull, "ledger.reserve", "event %s is fully booked", t.slot.EventID)
	}
	t.slot.Held++
	t.dirty = true
	return nil
}

// ReleaseSeat stages held-1. held never goes below zero; a release at zero
// stages nothing and returns false so the caller can report the mismatch.
func (t *Tx) ReleaseSeat() bool {
	if t.slot.Held == 0 {
		return false
	}
	t.slot.Held--
	t.dirty = true
	return true
}

// SetCapacity stages a capacity change. Capacity must be positive and not
// below the current held count.
func (t *Tx) SetCapacity(capacity int) error {
	if capacity <= 0 {
		return model.E(model.KindInvalidInput, "ledger.capacity", "capacity must be a positive integer")
	}
	if capacity < t.slot.Held {
		return model.E(model.KindBelowHeldCount, "ledger.capacity",
			"capacity %d is below %d held seats", capacity, t.slot.Held)
	}
	t.slot.Capacity = capacity
	t.dirty = true
	return nil
}

// SetStatus stages a status change.
func (t *Tx) SetStatus(status model.EventStatus) {
	t.slot.Status = status
	t.dirty = true
}
