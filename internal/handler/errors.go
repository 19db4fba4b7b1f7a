package handler

import (
	"log/slog"
	"net/http"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// statusFor maps a domain error kind to its HTTP status.
func statusFor(kind model.Kind) int {
	switch kind {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindInvalidInput:
		return http.StatusBadRequest
	case model.KindUnavailable:
		return http.StatusServiceUnavailable
	case model.KindNotBookable, model.KindFull, model.KindDuplicateReservation,
		model.KindInvalidTransition, model.KindBelowHeldCount:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError renders err as an ErrorResponse. Errors that carry no domain
// kind are logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := model.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	if kind == "" {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"error", err,
		)
		writeJSON(w, status, model.ErrorResponse{Error: "internal server error", Code: "internal"})
		return
	}
	writeJSON(w, status, model.ErrorResponse{Error: err.Error(), Code: string(kind)})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, model.ErrorResponse{
		Error: "invalid request body: " + err.Error(),
		Code:  string(model.KindInvalidInput),
	})
}
