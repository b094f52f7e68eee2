package handler

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/ensemblehq/chairfill/internal/service"
)

// sweepResponse aggregates sweep results across all tenants.
type sweepResponse struct {
	RemindersProcessed int                             `json:"remindersProcessed"`
	TimeoutsProcessed  int                             `json:"timeoutsProcessed"`
	Errors             []string                        `json:"errors"`
	Tenants            map[string]*service.SweepReport `json:"tenants"`
}

// Sweep handles POST /internal/sweep, the externally scheduled trigger for
// the reminder and timeout sweeps. It is guarded by a shared secret and safe
// to re-invoke on overlapping schedules.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Sweep-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.SweepSecret)) != 1 {
		h.Error(w, http.StatusUnauthorized, "invalid sweep secret")
		return
	}

	out := &sweepResponse{
		Errors:  []string{},
		Tenants: make(map[string]*service.SweepReport),
	}

	for _, tenantID := range h.registry.Tenants() {
		st, err := h.registry.Resolve(r.Context(), tenantID)
		if err != nil {
			// One tenant's unavailable store must not mask the others.
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", tenantID, err))
			continue
		}

		report := h.staffing.Sweep(r.Context(), tenantID, st)
		out.Tenants[tenantID] = report
		out.RemindersProcessed += report.RemindersProcessed
		out.TimeoutsProcessed += report.TimeoutsProcessed
		for _, e := range report.Errors {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", tenantID, e))
		}
	}

	h.JSON(w, http.StatusOK, out)
}
