// Package api exposes the scoring toolkit over HTTP: the indicator
// catalog, ad-hoc scoring, stored location scores, and area rollups.
package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/walkshed/access-cli/internal/config"
	"github.com/walkshed/access-cli/internal/indicator"
	"github.com/walkshed/access-cli/internal/monitoring"
	"github.com/walkshed/access-cli/internal/report"
	"github.com/walkshed/access-cli/internal/store"
)

// Handler bundles the dependencies behind the HTTP endpoints.
type Handler struct {
	store     store.Store
	catalog   indicator.Catalog
	builder   *report.Builder
	cache     *report.Cache
	collector *monitoring.Collector
	rollup    config.RollupConfig
}

// NewHandler creates the API handler. A nil cache disables rollup
// caching and omits cache stats from the status endpoint.
func NewHandler(st store.Store, catalog indicator.Catalog, cache *report.Cache, rollup config.RollupConfig) *Handler {
	return &Handler{
		store:     st,
		catalog:   catalog,
		builder:   report.NewBuilder(st, cache),
		cache:     cache,
		collector: monitoring.NewCollector(st),
		rollup:    rollup,
	}
}

// Router assembles the chi router with CORS, rate limiting, and
// request logging around the v1 endpoints.
func (h *Handler) Router(cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(rateLimit(rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst)))

	r.Get("/health", h.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/catalog", h.handleCatalog)
		r.Post("/score", h.handleScore)
		r.Get("/locations/{locationID}/scores", h.handleLocationScores)
		r.Get("/rollups", h.handleRollups)
		r.Get("/status", h.handleStatus)
	})
	return r
}

// rateLimit rejects requests once the shared token bucket is drained,
// answering 429 with a Retry-After hint.
func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiter.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
