package handlers

import (
	"net/http"
	"time"

	"huntdesk-ops/config"
	"huntdesk-ops/core/ops"
	"huntdesk-ops/core/store"
)

type HealthHandler struct {
	cfg     *config.AppConfig
	records store.RecordsStore
	scorer  *ops.Scorer
}

func NewHealthHandler(cfg *config.AppConfig, records store.RecordsStore, scorer *ops.Scorer) *HealthHandler {
	return &HealthHandler{cfg: cfg, records: records, scorer: scorer}
}

// Snapshot recomputes the rolling verdict on demand from the stored
// record stream.
func (h *HealthHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	trendHours := h.cfg.Health.TrendHours
	if trendHours <= 0 {
		trendHours = 24
	}
	recent, err := h.records.ListRecords(r.Context(), store.IncidentRecordFilter{
		Since: now.Add(-time.Duration(trendHours) * time.Hour),
	})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h.scorer.Snapshot(recent, now))
}
