// Package service implements business logic, validation, and orchestration
// between HTTP handlers, the seat ledger, the reservation directory and the
// store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/clock"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/ledger"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/repository"
	"github.com/google/uuid"
)

const maxCapacity = 100_000

// EventService is the event catalog. Metadata lives in the store; status,
// capacity and held seats are owned by the ledger and mirrored to the store.
type EventService struct {
	store  repository.Store
	ledger *ledger.Ledger
	clock  clock.Clock
	logger *slog.Logger
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(store repository.Store, led *ledger.Ledger, clk clock.Clock, logger *slog.Logger) *EventService {
	return &EventService{store: store, ledger: led, clock: clk, logger: logger}
}

// Load tracks every stored event in the ledger.
func (s *EventService) Load(ctx context.Context) error {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	for _, e := range events {
		s.ledger.Track(e)
	}
	s.logger.Info("events loaded", "count", len(events))
	return nil
}

// CreateEvent validates the request and stores a new draft event.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (model.Event, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return model.Event{}, invalid("event.create", "title is required")
	}
	if req.Date.IsZero() {
		return model.Event{}, invalid("event.create", "date is required")
	}
	if err := validateCapacity("event.create", req.Capacity); err != nil {
		return model.Event{}, err
	}

	now := s.clock.Now()
	e := model.Event{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		Location:    strings.TrimSpace(req.Location),
		Date:        req.Date.UTC(),
		Capacity:    req.Capacity,
		Status:      model.EventDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateEvent(ctx, e); err != nil {
		return model.Event{}, fmt.Errorf("create event: %w", err)
	}
	s.ledger.Track(e)

	s.logger.Info("event created", "event_id", e.ID, "capacity", e.Capacity)
	return e, nil
}

// UpdateEvent edits metadata and, when requested, the capacity. The event
// is read and merged under the event lock, and a rejected capacity leaves
// every field unchanged.
func (s *EventService) UpdateEvent(ctx context.Context, id string, req model.UpdateEventRequest) (model.Event, error) {
	const op = "event.update"
	if id == "" {
		return model.Event{}, invalid(op, "event id is required")
	}
	var title *string
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		if t == "" {
			return model.Event{}, invalid(op, "title cannot be empty")
		}
		title = &t
	}
	if req.Date != nil && req.Date.IsZero() {
		return model.Event{}, invalid(op, "date cannot be empty")
	}
	if req.Capacity != nil {
		if err := validateCapacity(op, *req.Capacity); err != nil {
			return model.Event{}, err
		}
	}

	err := s.ledger.Do(ctx, id, func(tx *ledger.Tx) error {
		if req.Capacity != nil {
			if err := tx.SetCapacity(*req.Capacity); err != nil {
				return err
			}
		}
		e, err := s.store.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if title != nil {
			e.Title = *title
		}
		if req.Description != nil {
			e.Description = strings.TrimSpace(*req.Description)
		}
		if req.Location != nil {
			e.Location = strings.TrimSpace(*req.Location)
		}
		if req.Date != nil {
			e.Date = req.Date.UTC()
		}
		if req.Capacity != nil {
			e.Capacity = *req.Capacity
		}
		e.UpdatedAt = s.clock.Now()
		if err := s.store.UpdateEvent(ctx, e, req.Capacity != nil); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Event{}, err
	}
	return s.GetEvent(ctx, id)
}

// SetCapacity changes the event's capacity. It fails with ErrBelowHeldCount
// when the new capacity is lower than the seats currently held.
func (s *EventService) SetCapacity(ctx context.Context, id string, capacity int) (model.Event, error) {
	if err := validateCapacity("event.capacity", capacity); err != nil {
		return model.Event{}, err
	}
	err := s.ledger.Do(ctx, id, func(tx *ledger.Tx) error {
		if err := tx.SetCapacity(capacity); err != nil {
			return err
		}
		return s.store.SetCapacity(ctx, id, capacity, s.clock.Now())
	})
	if err != nil {
		return model.Event{}, err
	}

	s.logger.Info("event capacity changed", "event_id", id, "capacity", capacity)
	return s.GetEvent(ctx, id)
}

// PublishEvent opens a draft event for reservations. Publishing twice is a
// no-op; a canceled event cannot be published again.
func (s *EventService) PublishEvent(ctx context.Context, id string) (model.Event, error) {
	return s.changeStatus(ctx, id, model.EventPublished, func(cur model.EventStatus) (bool, error) {
		switch cur {
		case model.EventPublished:
			return false, nil
		case model.EventCanceled:
			return false, model.E(model.KindInvalidTransition, "event.publish", "event %s is canceled", id)
		}
		return true, nil
	})
}

// CancelEvent stops new reservations. Existing reservations keep their
// state and seats until an admin cancels them.
func (s *EventService) CancelEvent(ctx context.Context, id string) (model.Event, error) {
	return s.changeStatus(ctx, id, model.EventCanceled, func(cur model.EventStatus) (bool, error) {
		return cur != model.EventCanceled, nil
	})
}

func (s *EventService) changeStatus(ctx context.Context, id string, to model.EventStatus, check func(model.EventStatus) (bool, error)) (model.Event, error) {
	var from model.EventStatus
	var changed bool
	err := s.ledger.Do(ctx, id, func(tx *ledger.Tx) error {
		from = tx.Slot().Status
		ok, err := check(from)
		if err != nil || !ok {
			return err
		}
		tx.SetStatus(to)
		if err := s.store.SetEventStatus(ctx, id, to, s.clock.Now()); err != nil {
			return fmt.Errorf("set event status: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return model.Event{}, err
	}
	if changed {
		s.logger.Info("event status changed", "event_id", id, "from", from, "to", to)
	}
	return s.GetEvent(ctx, id)
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (model.Event, error) {
	if id == "" {
		return model.Event{}, invalid("event.get", "event id is required")
	}
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	return s.overlay(e), nil
}

// ListEvents returns all events, newest first.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	for i := range events {
		events[i] = s.overlay(events[i])
	}
	return events, nil
}

// ListPublished returns the events open for reservations.
func (s *EventService) ListPublished(ctx context.Context) ([]model.Event, error) {
	events, err := s.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, e := range events {
		if e.Status == model.EventPublished {
			out = append(out, e)
		}
	}
	return out, nil
}

// AvailableSeats returns capacity minus held seats.
func (s *EventService) AvailableSeats(_ context.Context, id string) (int, error) {
	slot, err := s.slot(id)
	if err != nil {
		return 0, err
	}
	return slot.Available(), nil
}

// GetEventStatus returns the event's current status.
func (s *EventService) GetEventStatus(_ context.Context, id string) (model.EventStatus, error) {
	slot, err := s.slot(id)
	if err != nil {
		return "", err
	}
	return slot.Status, nil
}

// GetCapacity returns the event's current capacity.
func (s *EventService) GetCapacity(_ context.Context, id string) (int, error) {
	slot, err := s.slot(id)
	if err != nil {
		return 0, err
	}
	return slot.Capacity, nil
}

func (s *EventService) slot(id string) (ledger.Slot, error) {
	slot, ok := s.ledger.Snapshot(id)
	if !ok {
		return ledger.Slot{}, model.E(model.KindNotFound, "event", "event %s not found", id)
	}
	return slot, nil
}

// overlay replaces the stored counters with the ledger's, which are
// authoritative while the process runs.
func (s *EventService) overlay(e model.Event) model.Event {
	if slot, ok := s.ledger.Snapshot(e.ID); ok {
		e.Status = slot.Status
		e.Capacity = slot.Capacity
		e.Held = slot.Held
	}
	return e
}

func validateCapacity(op string, capacity int) error {
	if capacity <= 0 {
		return invalid(op, "capacity must be a positive integer")
	}
	if capacity > maxCapacity {
		return invalid(op, "capacity cannot exceed 100,000")
	}
	return nil
}

func invalid(op, msg string) error {
	return model.E(model.KindInvalidInput, op, "%s", msg)
}
