package handlers

import (
	"net/http"

	"github.com/kozaktomas/faceverify/internal/verify"
)

// ModelStatusProvider reports the state of the recognition models.
type ModelStatusProvider interface {
	ModelStatus() verify.ModelStatus
}

// HealthHandler serves the health check.
type HealthHandler struct {
	models ModelStatusProvider
}

func NewHealthHandler(models ModelStatusProvider) *HealthHandler {
	return &HealthHandler{models: models}
}

// Health reports ok once the models are loaded and "loading" before.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.models.ModelStatus()
	state := "ok"
	if !status.Loaded {
		state = "loading"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": state,
		"models": status,
	})
}
