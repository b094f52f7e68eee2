package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ensemblehq/chairfill/internal/middleware"
)

// sendRequestsBody is the optional body of POST /api/needs/{needId}/send.
type sendRequestsBody struct {
	BatchSize int `json:"batchSize"`
}

// SendRequests handles POST /api/needs/{needId}/send: ranked selection plus
// dispatch for one need.
func (h *Handler) SendRequests(w http.ResponseWriter, r *http.Request) {
	st := middleware.GetStore(r.Context())
	tenantID := middleware.GetTenantID(r.Context())
	needID := chi.URLParam(r, "needId")

	var body sendRequestsBody
	if r.ContentLength > 0 {
		if err := h.DecodeJSON(r, &body); err != nil {
			h.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.staffing.SendRequests(r.Context(), tenantID, st, needID, body.BatchSize)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, result)
}

// PreviewNeed handles GET /api/needs/{needId}/preview: dry-run selection
// with the annotated candidate pool, no side effects.
func (h *Handler) PreviewNeed(w http.ResponseWriter, r *http.Request) {
	st := middleware.GetStore(r.Context())

	result, err := h.staffing.Preview(r.Context(), st, chi.URLParam(r, "needId"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, result)
}

// PreviewProject handles GET /api/projects/{projectId}/preview: dry-run
// selection for every active need of a project.
func (h *Handler) PreviewProject(w http.ResponseWriter, r *http.Request) {
	st := middleware.GetStore(r.Context())

	results, err := h.staffing.PreviewProject(r.Context(), st, chi.URLParam(r, "projectId"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, results)
}

// GetSendProgress handles GET /api/needs/{needId}/progress. The tracker is
// advisory; a missing entry reports as idle, never an error.
func (h *Handler) GetSendProgress(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	needID := chi.URLParam(r, "needId")
	h.JSON(w, http.StatusOK, h.tracker.Get(tenantID+"/"+needID))
}

// ListNeedRequests handles GET /api/needs/{needId}/requests.
func (h *Handler) ListNeedRequests(w http.ResponseWriter, r *http.Request) {
	st := middleware.GetStore(r.Context())

	requests, err := st.ListRequestsByNeed(r.Context(), chi.URLParam(r, "needId"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, requests)
}

// CancelRequest handles POST /api/requests/{requestId}/cancel.
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	st := middleware.GetStore(r.Context())

	request, err := h.staffing.Cancel(r.Context(), st, chi.URLParam(r, "requestId"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, request)
}

// ListRequestCommunications handles GET /api/requests/{requestId}/communications.
func (h *Handler) ListRequestCommunications(w http.ResponseWriter, r *http.Request) {
	st := middleware.GetStore(r.Context())
	requestID := chi.URLParam(r, "requestId")

	if _, err := st.GetRequestByID(r.Context(), requestID); err != nil {
		h.serviceError(w, err)
		return
	}
	entries, err := st.ListCommunicationsByRequest(r.Context(), requestID)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, entries)
}
