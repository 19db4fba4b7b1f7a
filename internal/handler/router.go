package handler

import (
	"log/slog"
	"net/http"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Services groups what the router serves.
type Services struct {
	Events       *service.EventService
	Reservations *service.ReservationService
	Tickets      *service.TicketIssuer
	Stats        *service.StatsService
}

// NewRouter builds the HTTP API.
func NewRouter(svc Services, corsOrigins []string, logger *slog.Logger) http.Handler {
	events := NewEventHandler(svc.Events, svc.Reservations, logger)
	reservations := NewReservationHandler(svc.Reservations, svc.Tickets, logger)
	stats := NewStatsHandler(svc.Stats, logger)
	adminOnly := RequireRole(model.RoleAdmin)

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(logger))          // structured access log
	r.Use(CORS(corsOrigins))

	r.Get("/health", HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(Identity)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", events.ListEvents)
			r.Get("/{id}", events.GetEvent)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/", events.CreateEvent)
				r.Patch("/{id}", events.UpdateEvent)
				r.Post("/{id}/publish", events.Publish)
				r.Post("/{id}/cancel", events.Cancel)
				r.Put("/{id}/capacity", events.SetCapacity)
				r.Get("/{id}/reservations", events.ListReservations)
			})
		})

		r.Route("/reservations", func(r chi.Router) {
			r.With(RequireRole(model.RoleParticipant)).Post("/", reservations.Reserve)
			r.With(adminOnly).Get("/", reservations.List)
			r.Get("/mine", reservations.Mine)
			r.Get("/{id}", reservations.Get)
			r.Get("/{id}/ticket", reservations.Ticket)
			r.Post("/{id}/cancel", reservations.Cancel)
			r.With(adminOnly).Post("/{id}/confirm", reservations.Confirm)
			r.With(adminOnly).Post("/{id}/refuse", reservations.Refuse)
		})

		r.With(adminOnly).Get("/stats/dashboard", stats.Dashboard)
	})

	return r
}
