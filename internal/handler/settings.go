package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ensemblehq/chairfill/internal/middleware"
	"github.com/ensemblehq/chairfill/internal/model"
	"github.com/ensemblehq/chairfill/internal/settings"
)

// settingBody is the body of PUT /api/settings/{key}.
type settingBody struct {
	Value string `json:"value"`
}

// ListSettings handles GET /api/settings.
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	st := middleware.GetStore(r.Context())

	items, err := st.ListSettings(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, items)
}

// PutSetting handles PUT /api/settings/{key}. Known keys are validated on
// write so a bad value fails here instead of at point of use.
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	st := middleware.GetStore(r.Context())
	key := chi.URLParam(r, "key")

	var body settingBody
	if err := h.DecodeJSON(r, &body); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch key {
	case model.SettingReminderPercentage:
		pct, err := strconv.Atoi(body.Value)
		if err != nil || pct < 0 || pct > 100 {
			h.Error(w, http.StatusBadRequest, settings.ErrInvalidReminderPercent.Error())
			return
		}
	case model.SettingRankingConflictStrategy:
		if _, err := settings.ParseConflictStrategy(body.Value); err != nil {
			h.Error(w, http.StatusBadRequest, err.Error())
			return
		}
	case model.SettingResponseWindowHours:
		hours, err := strconv.Atoi(body.Value)
		if err != nil || hours <= 0 {
			h.Error(w, http.StatusBadRequest, settings.ErrInvalidResponseWindow.Error())
			return
		}
	}

	setting := &model.Setting{Key: key, Value: body.Value}
	if err := st.SetSetting(r.Context(), setting); err != nil {
		h.serviceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, setting)
}
