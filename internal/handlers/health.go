package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
)

const healthPingTimeout = 2 * time.Second

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := &models.HealthResponse{
		Status:    "ok",
		Store:     "ok",
		Timestamp: time.Now().Unix(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.log.Error("Store health check failed", err)
		response.Status = "degraded"
		response.Store = "unavailable"
		h.writeJSON(w, response, http.StatusServiceUnavailable)
		return
	}

	h.writeJSON(w, response, http.StatusOK)
}
