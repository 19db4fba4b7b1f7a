// Package repository implements persistence for events and reservations.
//
// Three backends share the Store interface: Memory for tests and
// single-process demos, Postgres (pgx, row locks) and SQLite (modernc,
// guarded updates). Every durable backend re-checks the seat invariants in
// its own transaction so that a second process writing to the same
// database cannot overbook either.
package repository

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
)

// Store is the full persistence surface used by the services.
type Store interface {
	// CreateEvent inserts a new event. Held is ignored and stored as zero.
	CreateEvent(ctx context.Context, e model.Event) error
	// UpdateEvent writes title, description, location, date and updated_at.
	// With withCapacity set it also writes e.Capacity, failing with
	// ErrBelowHeldCount and writing nothing when it is below the stored held
	// count. Status and held are left alone.
	UpdateEvent(ctx context.Context, e model.Event, withCapacity bool) error
	// SetEventStatus changes the event status.
	SetEventStatus(ctx context.Context, eventID string, status model.EventStatus, at time.Time) error
	// SetCapacity changes capacity, failing with ErrBelowHeldCount when
	// capacity is below the stored held count.
	SetCapacity(ctx context.Context, eventID string, capacity int, at time.Time) error
	GetEvent(ctx context.Context, eventID string) (model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)

	// InsertReservation stores a pending reservation and increments the
	// event's held count.
	InsertReservation(ctx context.Context, r model.Reservation) error
	// UpdateReservationState moves a reservation from one state to another,
	// failing with ErrInvalidTransition when it is no longer in from. When
	// release is set the event's held count is decremented in the same
	// transaction.
	UpdateReservationState(ctx context.Context, id string, from, to model.ReservationState, release bool, at time.Time) error
	// ListReservations returns every reservation ordered by creation time.
	ListReservations(ctx context.Context) ([]model.Reservation, error)
}
