package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/service"
	"github.com/go-chi/chi/v5"
)

// ReservationHandler serves reservations and their tickets.
type ReservationHandler struct {
	svc     *service.ReservationService
	tickets *service.TicketIssuer
	logger  *slog.Logger
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(svc *service.ReservationService, tickets *service.TicketIssuer, logger *slog.Logger) *ReservationHandler {
	return &ReservationHandler{svc: svc, tickets: tickets, logger: logger}
}

// Reserve handles POST /reservations
// Holds one seat of the requested event for the caller.
func (h *ReservationHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req model.ReserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	res, err := h.svc.Reserve(r.Context(), ActorFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// List handles GET /reservations
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	rs, err := h.svc.All(r.Context(), ActorFrom(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

// Mine handles GET /reservations/mine
func (h *ReservationHandler) Mine(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Mine(r.Context(), ActorFrom(r.Context())))
}

// Get handles GET /reservations/{id}
func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Get(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Confirm handles POST /reservations/{id}/confirm
func (h *ReservationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Confirm)
}

// Refuse handles POST /reservations/{id}/refuse
func (h *ReservationHandler) Refuse(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Refuse)
}

// Cancel handles POST /reservations/{id}/cancel
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Cancel)
}

func (h *ReservationHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	apply func(context.Context, model.Actor, string) (model.Reservation, error),
) {
	res, err := apply(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Ticket handles GET /reservations/{id}/ticket
// Returns the ticket data of a confirmed reservation.
func (h *ReservationHandler) Ticket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.tickets.Issue(r.Context(), chi.URLParam(r, "id"), ActorFrom(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// StatsHandler serves the organizer dashboard.
type StatsHandler struct {
	svc    *service.StatsService
	logger *slog.Logger
}

// NewStatsHandler constructs a StatsHandler.
func NewStatsHandler(svc *service.StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{svc: svc, logger: logger}
}

// Dashboard handles GET /stats/dashboard
func (h *StatsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
