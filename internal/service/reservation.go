package service

import (
	"context"
	"strings"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/reservation"
)

// ReservationService validates caller input and routes reservation
// operations to the directory.
type ReservationService struct {
	dir    *reservation.Directory
	events *EventService
}

// NewReservationService constructs a ReservationService.
func NewReservationService(dir *reservation.Directory, events *EventService) *ReservationService {
	return &ReservationService{dir: dir, events: events}
}

// Reserve holds a seat on eventID for the calling participant.
func (s *ReservationService) Reserve(ctx context.Context, actor model.Actor, req model.ReserveRequest) (model.Reservation, error) {
	if actor.Role != model.RoleParticipant {
		return model.Reservation{}, model.E(model.KindForbidden, "reservation.create", "only participants can reserve seats")
	}
	if actor.ID == "" {
		return model.Reservation{}, invalid("reservation.create", "participant id is required")
	}
	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		return model.Reservation{}, invalid("reservation.create", "event_id is required")
	}
	return s.dir.Create(ctx, actor.ID, eventID)
}

// Confirm moves a pending reservation to confirmed. Admin only.
func (s *ReservationService) Confirm(ctx context.Context, actor model.Actor, id string) (model.Reservation, error) {
	return s.transition(ctx, actor, id, model.ActionConfirm)
}

// Refuse rejects a pending reservation and frees its seat. Admin only.
func (s *ReservationService) Refuse(ctx context.Context, actor model.Actor, id string) (model.Reservation, error) {
	return s.transition(ctx, actor, id, model.ActionRefuse)
}

// Cancel withdraws a pending or confirmed reservation and frees its seat.
// Allowed for the owner and for admins.
func (s *ReservationService) Cancel(ctx context.Context, actor model.Actor, id string) (model.Reservation, error) {
	return s.transition(ctx, actor, id, model.ActionCancel)
}

func (s *ReservationService) transition(ctx context.Context, actor model.Actor, id string, action model.Action) (model.Reservation, error) {
	if id == "" {
		return model.Reservation{}, invalid("reservation."+string(action), "reservation id is required")
	}
	return s.dir.Transition(ctx, id, action, actor)
}

// Get returns a reservation. Participants only see their own.
func (s *ReservationService) Get(_ context.Context, actor model.Actor, id string) (model.Reservation, error) {
	r, err := s.dir.Get(id)
	if err != nil {
		return model.Reservation{}, err
	}
	if !actor.IsAdmin() && r.ParticipantID != actor.ID {
		return model.Reservation{}, model.E(model.KindForbidden, "reservation.get", "you can only view your own reservations")
	}
	return r, nil
}

// Mine returns the caller's reservations, oldest first.
func (s *ReservationService) Mine(_ context.Context, actor model.Actor) []model.Reservation {
	return s.dir.FindByParticipant(actor.ID)
}

// ForEvent returns every reservation of an event. Admin only.
func (s *ReservationService) ForEvent(ctx context.Context, actor model.Actor, eventID string) ([]model.Reservation, error) {
	if !actor.IsAdmin() {
		return nil, model.E(model.KindForbidden, "reservation.list", "admin role required")
	}
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.dir.FindByEvent(eventID), nil
}

// All returns every reservation. Admin only.
func (s *ReservationService) All(_ context.Context, actor model.Actor) ([]model.Reservation, error) {
	if !actor.IsAdmin() {
		return nil, model.E(model.KindForbidden, "reservation.list", "admin role required")
	}
	return s.dir.List(), nil
}
