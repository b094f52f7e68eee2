package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ensemblehq/chairfill/internal/service"
	"github.com/ensemblehq/chairfill/internal/store"
)

// validateResponse is the body of GET /respond/{tenantId}/{token}.
type validateResponse struct {
	Valid    bool   `json:"valid"`
	Request  any    `json:"request,omitempty"`
	Need     any    `json:"need,omitempty"`
	Musician any    `json:"musician,omitempty"`
	Error    string `json:"error,omitempty"`
}

// respondRequest is the body of POST /respond/{tenantId}/{token}.
type respondRequest struct {
	Decision string          `json:"decision"`
	Message  json.RawMessage `json:"message,omitempty"`
}

// resolveRespondStore resolves the tenant named in the response URL. The
// token itself is the caller's credential; the tenant segment only picks the
// data store it lives in.
func (h *Handler) resolveRespondStore(w http.ResponseWriter, r *http.Request) *store.Store {
	tenantID := chi.URLParam(r, "tenantId")
	st, err := h.registry.Resolve(r.Context(), tenantID)
	if err != nil {
		h.JSON(w, http.StatusNotFound, validateResponse{Valid: false, Error: ErrCodeInvalidToken})
		return nil
	}
	return st
}

// ValidateToken handles GET /respond/{tenantId}/{token}. It never mutates
// state; musicians load it to see the offer before answering.
func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	st := h.resolveRespondStore(w, r)
	if st == nil {
		return
	}

	tc, err := h.staffing.ValidateToken(r.Context(), st, chi.URLParam(r, "token"))
	if err != nil {
		if code := tokenErrorCode(err); code != "" {
			h.JSON(w, http.StatusOK, validateResponse{Valid: false, Error: code})
			return
		}
		h.serviceError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, validateResponse{
		Valid:    true,
		Request:  tc.Request,
		Need:     tc.Need,
		Musician: tc.Musician,
	})
}

// SubmitResponse handles POST /respond/{tenantId}/{token}: the musician's
// accept or decline.
func (h *Handler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	st := h.resolveRespondStore(w, r)
	if st == nil {
		return
	}
	tenantID := chi.URLParam(r, "tenantId")

	var body respondRequest
	if err := h.DecodeJSON(r, &body); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	request, err := h.staffing.Respond(r.Context(), tenantID, st, chi.URLParam(r, "token"), body.Decision, body.Message)
	if err != nil {
		if code := tokenErrorCode(err); code != "" {
			status := http.StatusConflict
			if code == ErrCodeInvalidToken {
				status = http.StatusNotFound
			} else if code == ErrCodeExpired {
				status = http.StatusGone
			}
			h.JSON(w, status, map[string]string{"error": code})
			return
		}
		if errors.Is(err, service.ErrInvalidDecision) {
			h.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.serviceError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, request)
}
