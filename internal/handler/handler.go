// Package handler contains the HTTP handlers for the staffing coordinator.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ensemblehq/chairfill/internal/config"
	"github.com/ensemblehq/chairfill/internal/progress"
	"github.com/ensemblehq/chairfill/internal/service"
	"github.com/ensemblehq/chairfill/internal/settings"
	"github.com/ensemblehq/chairfill/internal/store"
	"github.com/ensemblehq/chairfill/internal/tenant"
)

// Error codes returned to external callers.
const (
	ErrCodeInvalidToken     = "invalid_token"
	ErrCodeExpired          = "expired"
	ErrCodeAlreadyResponded = "already_responded"
)

// Handler contains all HTTP handlers
type Handler struct {
	registry *tenant.Registry
	staffing *service.StaffingService
	tracker  *progress.Tracker
	cfg      *config.Config
	log      *zap.SugaredLogger
}

// New creates a new Handler.
func New(registry *tenant.Registry, staffing *service.StaffingService, tracker *progress.Tracker, cfg *config.Config, log *zap.SugaredLogger) *Handler {
	return &Handler{
		registry: registry,
		staffing: staffing,
		tracker:  tracker,
		cfg:      cfg,
		log:      log,
	}
}

// JSON helper to write JSON responses
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error helper to write error responses
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// DecodeJSON helper to decode request body
func (h *Handler) DecodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// tokenErrorCode maps token/response validation failures to their wire codes.
// Returns "" for errors that are not part of the token taxonomy.
func tokenErrorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		return ErrCodeInvalidToken
	case errors.Is(err, service.ErrTokenExpired):
		return ErrCodeExpired
	case errors.Is(err, service.ErrAlreadyResponded):
		return ErrCodeAlreadyResponded
	default:
		return ""
	}
}

// serviceError writes the appropriate status for a staffing service error.
func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrNeedNotSelectable):
		h.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidDecision),
		errors.Is(err, settings.ErrUnknownStrategy),
		errors.Is(err, settings.ErrInvalidReminderPercent),
		errors.Is(err, settings.ErrInvalidResponseWindow):
		h.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Errorw("internal error", "error", err)
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}
