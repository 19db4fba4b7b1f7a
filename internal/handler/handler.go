// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/service"
	"github.com/go-chi/chi/v5"
)

// EventHandler serves the event catalog.
type EventHandler struct {
	svc          *service.EventService
	reservations *service.ReservationService
	logger       *slog.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc *service.EventService, reservations *service.ReservationService, logger *slog.Logger) *EventHandler {
	return &EventHandler{svc: svc, reservations: reservations, logger: logger}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
// Creates a draft event with the given title, date and capacity.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
// Admins see every event; everyone else sees published events only.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	list := h.svc.ListPublished
	if ActorFrom(r.Context()).IsAdmin() {
		list = h.svc.ListEvents
	}
	events, err := list(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if event.Status != model.EventPublished && !ActorFrom(r.Context()).IsAdmin() {
		writeError(w, r, h.logger, model.E(model.KindNotFound, "event.get", "event %s not found", event.ID))
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// UpdateEvent handles PATCH /events/{id}
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	event, err := h.svc.UpdateEvent(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// SetCapacity handles PUT /events/{id}/capacity
func (h *EventHandler) SetCapacity(w http.ResponseWriter, r *http.Request) {
	var req model.SetCapacityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	event, err := h.svc.SetCapacity(r.Context(), chi.URLParam(r, "id"), req.Capacity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// Publish handles POST /events/{id}/publish
func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.PublishEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// Cancel handles POST /events/{id}/cancel
func (h *EventHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.CancelEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// ListReservations handles GET /events/{id}/reservations
// Returns all reservations for a given event.
func (h *EventHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	rs, err := h.reservations.ForEvent(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, rs)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
