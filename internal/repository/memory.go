package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
)

// Memory is a Store kept in process memory. Nothing survives a restart.
type Memory struct {
	mu           sync.Mutex
	events       map[string]model.Event
	reservations map[string]model.Reservation
	seq          []string
}

var _ Store = (*Memory)(nil)

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		events:       make(map[string]model.Event),
		reservations: make(map[string]model.Reservation),
	}
}

func (m *Memory) CreateEvent(_ context.Context, e model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; ok {
		return model.E(model.KindInvalidInput, "memory.create_event", "event %s already exists", e.ID)
	}
	e.Held = 0
	m.events[e.ID] = e
	return nil
}

func (m *Memory) UpdateEvent(_ context.Context, e model.Event, withCapacity bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.events[e.ID]
	if !ok {
		return eventNotFound("memory.update_event", e.ID)
	}
	if withCapacity {
		if e.Capacity < cur.Held {
			return belowHeld("memory.update_event", e.Capacity, cur.Held)
		}
		cur.Capacity = e.Capacity
	}
	cur.Title = e.Title
	cur.Description = e.Description
	cur.Location = e.Location
	cur.Date = e.Date
	cur.UpdatedAt = e.UpdatedAt
	m.events[e.ID] = cur
	return nil
}

func (m *Memory) SetEventStatus(_ context.Context, eventID string, status model.EventStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return eventNotFound("memory.set_status", eventID)
	}
	e.Status = status
	e.UpdatedAt = at
	m.events[eventID] = e
	return nil
}

func (m *Memory) SetCapacity(_ context.Context, eventID string, capacity int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return eventNotFound("memory.set_capacity", eventID)
	}
	if capacity < e.Held {
		return belowHeld("memory.set_capacity", capacity, e.Held)
	}
	e.Capacity = capacity
	e.UpdatedAt = at
	m.events[eventID] = e
	return nil
}

func (m *Memory) GetEvent(_ context.Context, eventID string) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return model.Event{}, eventNotFound("memory.get_event", eventID)
	}
	return e, nil
}

// ListEvents returns all events ordered by creation time descending.
func (m *Memory) ListEvents(_ context.Context) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Event, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) InsertReservation(_ context.Context, r model.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[r.EventID]
	if !ok {
		return eventNotFound("memory.insert_reservation", r.EventID)
	}
	if e.Status != model.EventPublished {
		return model.E(model.KindNotBookable, "memory.insert_reservation", "event %s is %s", e.ID, e.Status)
	}
	for _, other := range m.reservations {
		if other.EventID == r.EventID && other.ParticipantID == r.ParticipantID && other.State.HoldsSeat() {
			return model.E(model.KindDuplicateReservation, "memory.insert_reservation", "participant already holds a seat")
		}
	}
	if e.Held >= e.Capacity {
		return model.E(model.KindFull, "memory.insert_reservation", "event %s is fully booked", e.ID)
	}

	e.Held++
	m.events[e.ID] = e
	m.reservations[r.ID] = r
	m.seq = append(m.seq, r.ID)
	return nil
}

func (m *Memory) UpdateReservationState(_ context.Context, id string, from, to model.ReservationState, release bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[id]
	if !ok {
		return model.E(model.KindNotFound, "memory.update_reservation", "reservation %s not found", id)
	}
	if r.State != from {
		return staleState("memory.update_reservation", id, from, r.State)
	}
	if release {
		e := m.events[r.EventID]
		if e.Held > 0 {
			e.Held--
		}
		m.events[r.EventID] = e
	}
	r.State = to
	r.UpdatedAt = at
	m.reservations[id] = r
	return nil
}

func (m *Memory) ListReservations(_ context.Context) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Reservation, 0, len(m.seq))
	for _, id := range m.seq {
		out = append(out, m.reservations[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func eventNotFound(op, eventID string) error {
	return model.E(model.KindNotFound, op, "event %s not found", eventID)
}

func belowHeld(op string, capacity, held int) error {
	return model.E(model.KindBelowHeldCount, op, "capacity %d is below %d held seats", capacity, held)
}

func staleState(op, id string, want, got model.ReservationState) error {
	return model.E(model.KindInvalidTransition, op, "reservation %s is %s, expected %s", id, got, want)
}
