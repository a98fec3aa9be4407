package handlers

import (
	"net/http"

	"github.com/NickAwrist/dynamic-pr-templates/internal/errors"
	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
)

// DefaultOutcomeLimit is used when the limit query parameter is absent
const DefaultOutcomeLimit = 50

// Outcomes lists recent bootstrap outcomes, newest first
func (h *Handler) Outcomes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeAppError(w, errors.New(errors.ErrCodeMethodNotAllowed, "Method not allowed"))
		return
	}

	limit, appErr := h.validator.ParseLimit(r.URL.Query().Get("limit"), DefaultOutcomeLimit)
	if appErr != nil {
		h.writeAppError(w, appErr)
		return
	}

	outcomes, err := h.store.RecentOutcomes(r.Context(), limit)
	if err != nil {
		h.writeAppError(w, errors.DatabaseError(err))
		return
	}

	h.writeJSON(w, &models.StatusResponse{Status: "ok", Data: outcomes}, http.StatusOK)
}
