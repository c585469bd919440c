package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/walkshed/access-cli/internal/model"
	"github.com/walkshed/access-cli/internal/report"
	"github.com/walkshed/access-cli/internal/score"
	"github.com/walkshed/access-cli/internal/store"
)

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	defs := h.catalog.Definitions()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(defs),
		"categories": defs,
	})
}

// scoreRequest is an ad-hoc scoring input: the distances for one
// location and category, scored against an explicit threshold or the
// catalog threshold for the named category.
type scoreRequest struct {
	Category   string    `json:"category"`
	ThresholdM *float64  `json:"threshold_m"`
	DistancesM []float64 `json:"distances_m"`
	NearestM   *float64  `json:"nearest_m"`
}

// scoreResponse keeps nil scores as JSON nulls: a location with no
// reachable destination is unknown, not zero.
type scoreResponse struct {
	Category    string   `json:"category,omitempty"`
	ThresholdM  float64  `json:"threshold_m"`
	ClosestM    *float64 `json:"closest_m"`
	CountWithin int      `json:"count_within"`
	HardScore   *float64 `json:"hard_score"`
	SoftScore   *float64 `json:"soft_score"`
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	threshold, err := h.resolveThreshold(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, d := range req.DistancesM {
		if d < 0 {
			writeError(w, http.StatusBadRequest, "distances_m must be non-negative")
			return
		}
	}
	if req.NearestM != nil && *req.NearestM < 0 {
		writeError(w, http.StatusBadRequest, "nearest_m must be non-negative")
		return
	}

	count, err := score.CountWithin(req.DistancesM, threshold)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	set := model.DistanceSet{Category: req.Category, Distances: req.DistancesM, NearestM: req.NearestM}
	closest := set.EffectiveClosest()
	hard, err := score.HardThreshold(closest, threshold)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	soft, err := score.SoftThreshold(closest, threshold)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, scoreResponse{
		Category:    req.Category,
		ThresholdM:  threshold,
		ClosestM:    closest,
		CountWithin: count,
		HardScore:   hard,
		SoftScore:   soft,
	})
}

func (h *Handler) resolveThreshold(req scoreRequest) (float64, error) {
	if req.ThresholdM != nil {
		if *req.ThresholdM <= 0 {
			return 0, eris.New("threshold_m must be positive")
		}
		return *req.ThresholdM, nil
	}
	if req.Category == "" {
		return 0, eris.New("category or threshold_m is required")
	}
	def, ok := h.catalog.Lookup(req.Category)
	if !ok {
		return 0, eris.Errorf("unknown category %q", req.Category)
	}
	return def.ThresholdM, nil
}

func (h *Handler) handleLocationScores(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "locationID")

	runID := r.URL.Query().Get("run")
	if runID == "" {
		latest, err := h.store.LatestCompletedRun(r.Context())
		if err != nil {
			zap.L().Error("api: resolve latest run", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if latest == nil {
			writeError(w, http.StatusNotFound, "no completed scoring run")
			return
		}
		runID = latest.ID
	}

	scores, err := h.store.ScoresForLocation(r.Context(), runID, locationID)
	if err != nil {
		zap.L().Error("api: location scores",
			zap.String("location_id", locationID),
			zap.String("run_id", runID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(scores) == 0 {
		writeError(w, http.StatusNotFound, "no scores for location")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":      runID,
		"location_id": locationID,
		"scores":      scores,
	})
}

func (h *Handler) handleRollups(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	category := params.Get("category")
	if category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}
	level, err := model.ParseAreaLevel(orDefault(params.Get("level"), h.rollup.Level))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	weight, err := model.ParseWeightKind(orDefault(params.Get("weight"), h.rollup.Weight))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	metric, err := model.ParseScoreMetric(orDefault(params.Get("metric"), h.rollup.Metric))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := h.builder.Build(r.Context(), store.AreaQuery{
		RunID:    params.Get("run"),
		Category: category,
		Level:    level,
		Weight:   weight,
		Metric:   metric,
	})
	if err != nil {
		if eris.Is(err, report.ErrNoCompletedRun) {
			writeError(w, http.StatusNotFound, "no completed scoring run")
			return
		}
		zap.L().Error("api: rollup", zap.String("category", category), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.collector.Collect(r.Context(), 0)
	if err != nil {
		zap.L().Error("api: status snapshot", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := map[string]any{"snapshot": snap}
	if h.cache != nil {
		resp["cache"] = h.cache.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
