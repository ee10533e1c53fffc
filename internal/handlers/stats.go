package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pebly/pebly/internal/analytics"
	"github.com/pebly/pebly/internal/models"
)

type StatsHandler struct {
	DB  *sql.DB
	Agg *analytics.Aggregator
}

type statsResponse struct {
	Code      string          `json:"code"`
	Dimension string          `json:"dimension"`
	Range     string          `json:"range"`
	Buckets   []models.Bucket `json:"buckets"`
	Totals    models.Totals   `json:"totals"`
}

// rangeSince maps the supported query ranges to a lower time bound. The zero
// time means all time.
func rangeSince(r string, now time.Time) (time.Time, bool) {
	switch r {
	case "", "all":
		return time.Time{}, true
	case "24h":
		return now.Add(-24 * time.Hour), true
	case "7d":
		return now.Add(-7 * 24 * time.Hour), true
	case "30d":
		return now.Add(-30 * 24 * time.Hour), true
	default:
		return time.Time{}, false
	}
}

// Aggregates serves GET /api/links/{code}/stats.
func (h *StatsHandler) Aggregates(w http.ResponseWriter, r *http.Request) {
	c := chi.URLParam(r, "code")
	if _, err := models.GetLinkByCode(r.Context(), h.DB, c); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			jsonError(w, "not found", http.StatusNotFound)
			return
		}
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	dimension := r.URL.Query().Get("dimension")
	if dimension == "" {
		dimension = models.DimDay
	}
	switch dimension {
	case models.DimCountry, models.DimDevice, models.DimDay:
	default:
		jsonError(w, "dimension must be one of country, device, day", http.StatusBadRequest)
		return
	}

	rng := r.URL.Query().Get("range")
	since, ok := rangeSince(rng, time.Now().UTC())
	if !ok {
		jsonError(w, "range must be one of 24h, 7d, 30d, all", http.StatusBadRequest)
		return
	}
	if rng == "" {
		rng = "all"
	}

	buckets, err := h.Agg.Aggregates(r.Context(), c, dimension, since)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if buckets == nil {
		buckets = []models.Bucket{}
	}

	totals, err := h.Agg.Totals(r.Context(), c, since)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statsResponse{
		Code:      c,
		Dimension: dimension,
		Range:     rng,
		Buckets:   buckets,
		Totals:    totals,
	})
}

// RebuildRollups serves POST /api/rollups/rebuild: drop the derived buckets
// and recompute them from the raw click events.
func (h *StatsHandler) RebuildRollups(w http.ResponseWriter, r *http.Request) {
	if err := h.Agg.Rebuild(r.Context()); err != nil {
		jsonError(w, "rebuild failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
