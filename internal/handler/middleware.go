package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type actorKey struct{}

// ActorFrom returns the actor attached by Identity, or the zero Actor.
func ActorFrom(ctx context.Context) model.Actor {
	a, _ := ctx.Value(actorKey{}).(model.Actor)
	return a
}

// WithActor attaches actor to ctx.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Logger returns a middleware that logs each request and its duration.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}

// CORS allows cross-origin calls from origins. A "*" entry allows any.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowAll := slices.Contains(origins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && slices.Contains(origins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID, X-Role, X-Request-Id")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Identity reads the caller's verified identity from the X-User-ID and
// X-Role headers set by the upstream auth proxy.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-User-ID"))
		role := model.Role(strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role"))))
		if id == "" || role == "" {
			writeJSON(w, http.StatusUnauthorized, model.ErrorResponse{
				Error: "missing X-User-ID or X-Role header",
				Code:  "unauthorized",
			})
			return
		}
		if role != model.RoleAdmin && role != model.RoleParticipant {
			writeJSON(w, http.StatusUnauthorized, model.ErrorResponse{
				Error: "unknown role " + string(role),
				Code:  "unauthorized",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), model.Actor{ID: id, Role: role})))
	})
}

// RequireRole rejects callers whose role is not role.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ActorFrom(r.Context()).Role != role {
				writeJSON(w, http.StatusForbidden, model.ErrorResponse{
					Error: string(role) + " role required",
					Code:  string(model.KindForbidden),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
