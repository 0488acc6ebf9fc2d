package handlers

import (
	"net/http"

	"github.com/kozaktomas/faceverify/internal/cache"
	"github.com/kozaktomas/faceverify/internal/logging"
)

// CacheAdmin exposes the administrative descriptor cache operations.
type CacheAdmin interface {
	CacheStats() cache.Stats
	Invalidate(employeeID int64) bool
	ClearCache()
}

// CacheHandler handles /face-cache.
type CacheHandler struct {
	cache CacheAdmin
}

func NewCacheHandler(c CacheAdmin) *CacheHandler {
	return &CacheHandler{cache: c}
}

type cacheStatsResponse struct {
	cache.Stats
	TTLSeconds float64 `json:"ttlSeconds"`
}

// Stats handles GET /face-cache/stats.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.cache.CacheStats()
	respondJSON(w, http.StatusOK, cacheStatsResponse{Stats: stats, TTLSeconds: stats.TTL.Seconds()})
}

// Clear handles DELETE /face-cache.
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.cache.ClearCache()
	logging.Ctx(r.Context()).Info().Msg("descriptor cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

// Invalidate handles DELETE /face-cache/{employeeId}.
func (h *CacheHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	employeeID, err := employeeIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"removed": h.cache.Invalidate(employeeID)})
}
