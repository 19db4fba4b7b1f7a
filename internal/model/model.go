// Package model defines the core domain types for the seat reservation system.
package model

import "time"

// EventStatus is the publication state of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCanceled  EventStatus = "canceled"
)

// Event represents a bookable event created by an organizer.
type Event struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Location    string      `json:"location"`
	Date        time.Time   `json:"date"`
	Capacity    int         `json:"capacity"`
	Held        int         `json:"reserved_seats"`
	Status      EventStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ReservationState is a step in the reservation lifecycle.
type ReservationState string

const (
	StatePending   ReservationState = "pending"
	StateConfirmed ReservationState = "confirmed"
	StateRefused   ReservationState = "refused"
	StateCanceled  ReservationState = "canceled"
)

// HoldsSeat reports whether a reservation in this state counts against
// the event's capacity.
func (s ReservationState) HoldsSeat() bool {
	return s == StatePending || s == StateConfirmed
}

// Reservation is a participant's claim on one seat of an event.
type Reservation struct {
	ID            string           `json:"id"`
	ParticipantID string           `json:"participant_id"`
	EventID       string           `json:"event_id"`
	State         ReservationState `json:"state"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Action names an administrative or participant transition on a reservation.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionRefuse  Action = "refuse"
	ActionCancel  Action = "cancel"
)

// Role is the verified role of whoever triggers an operation.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
)

// Actor identifies the caller of an operation. It is supplied already
// verified by the identity layer.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Ticket is the data printed on an admission ticket for a confirmed
// reservation.
type Ticket struct {
	ReservationID string    `json:"reservation_id"`
	Code          string    `json:"code"`
	EventID       string    `json:"event_id"`
	EventTitle    string    `json:"event_title"`
	EventDate     time.Time `json:"event_date"`
	Location      string    `json:"location"`
	ParticipantID string    `json:"participant_id"`
	IssuedAt      time.Time `json:"issued_at"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Date        time.Time `json:"date"`
	Capacity    int       `json:"capacity"`
}

// UpdateEventRequest is the payload for editing an event. Nil fields are
// left unchanged.
type UpdateEventRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Capacity    *int       `json:"capacity,omitempty"`
}

// SetCapacityRequest is the payload for changing an event's capacity.
type SetCapacityRequest struct {
	Capacity int `json:"capacity"`
}

// ReserveRequest is the payload for reserving a seat.
type ReserveRequest struct {
	EventID string `json:"event_id"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// UpcomingEvents lists published events that have not happened yet.
type UpcomingEvents struct {
	Total  int     `json:"total"`
	Events []Event `json:"events"`
}

// FillRate aggregates seat usage over published events.
type FillRate struct {
	TotalCapacity  int     `json:"total_capacity"`
	TotalReserved  int     `json:"total_reserved"`
	FillRate       float64 `json:"fill_rate"`
	AvailableSeats int     `json:"available_seats"`
}

// ReservationCounts counts reservations per state.
type ReservationCounts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Refused   int `json:"refused"`
	Canceled  int `json:"canceled"`
}

// Dashboard is the organizer overview.
type Dashboard struct {
	UpcomingEvents       UpcomingEvents    `json:"upcoming_events"`
	FillRate             FillRate          `json:"fill_rate"`
	ReservationsByStatus ReservationCounts `json:"reservations_by_status"`
}
