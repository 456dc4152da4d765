// Package api provides the HTTP admin API over a cache coordinator.
package api

import (
	"context"
	stderr "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/tiercache/tiercache/internal/cache"
	"github.com/tiercache/tiercache/internal/metrics"
	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/utils"
)

const (
	defaultTrendWindow = time.Minute
	maxBodyBytes       = 1 << 20
)

// Server exposes cache statistics, health and administration over HTTP.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	cache      *cache.Coordinator
	metrics    *metrics.Collector
	logger     *utils.StructuredLogger
	config     ServerConfig
}

// ServerConfig configures the API server
type ServerConfig struct {
	// Address to bind the server to (e.g., "localhost:8080")
	Address string `yaml:"address" json:"address"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// WriteTimeout is the maximum duration for writing the response
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// IdleTimeout is the maximum duration to wait for the next request
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// EnableCORS enables Cross-Origin Resource Sharing
	EnableCORS bool `yaml:"enable_cors" json:"enable_cors"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      "localhost:8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		EnableCORS:   false,
	}
}

// NewServer creates a new API server. collector may be nil, in which case
// /metrics is not served.
func NewServer(config ServerConfig, c *cache.Coordinator, collector *metrics.Collector, logger *utils.StructuredLogger) *Server {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	s := &Server{
		router:  mux.NewRouter(),
		cache:   c,
		metrics: collector,
		logger:  logger.WithComponent("api"),
		config:  config,
	}
	s.RegisterRoutes(s.router)

	var handler http.Handler = s.router
	handler = s.loggingMiddleware(handler)
	if config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}

	s.httpServer = &http.Server{
		Addr:         config.Address,
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// RegisterRoutes registers all admin routes on router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	v1.HandleFunc("/stats", s.handleResetStats).Methods(http.MethodDelete)
	v1.HandleFunc("/trend", s.handleTrend).Methods(http.MethodGet)

	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)

	v1.HandleFunc("/clear", s.handleClear).Methods(http.MethodPost)
	v1.HandleFunc("/keys/{key}", s.handleDeleteKey).Methods(http.MethodDelete)

	v1.HandleFunc("/strategy", s.handleGetStrategy).Methods(http.MethodGet)
	v1.HandleFunc("/strategy", s.handleUpdateStrategy).Methods(http.MethodPut)

	v1.HandleFunc("/preheat", s.handlePreheat).Methods(http.MethodPost)
	v1.HandleFunc("/recommend", s.handleRecommend).Methods(http.MethodPost)

	if s.metrics != nil {
		router.Handle(s.metrics.Path(), s.metrics.Handler()).Methods(http.MethodGet)
	}
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting API server", map[string]any{"address": s.config.Address})
	return s.httpServer.ListenAndServe()
}

// StartBackground starts the server in a background goroutine
func (s *Server) StartBackground() {
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", map[string]any{"error": err.Error()})
		}
	}()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server", nil)
	return s.httpServer.Shutdown(ctx)
}

// Statistics handlers

type statsResponse struct {
	types.Statistics
	AverageResponse string         `json:"average_response"`
	MemoryLimit     int64          `json:"memory_limit"`
	Strategy        types.Strategy `json:"strategy"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.cache.Statistics()
	s.respondJSON(w, http.StatusOK, statsResponse{
		Statistics:      st,
		AverageResponse: st.AverageResponseTime.String(),
		MemoryLimit:     s.cache.MemoryLimit(),
		Strategy:        s.cache.Strategy(),
	})
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	s.cache.ResetStatistics()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"message":   "statistics reset",
		"timestamp": time.Now(),
	})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	window := defaultTrendWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid window %q", raw))
			return
		}
		window = d
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"window":          window.String(),
		"hits_per_second": s.cache.HitRateTrend(window),
	})
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tiers := s.cache.TierHealth()

	err := s.cache.PerformHealthCheck(r.Context())
	if err == nil {
		s.respondJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"tiers":     tiers,
			"timestamp": time.Now(),
		})
		return
	}

	var ce *errors.CacheError
	if !stderr.As(err, &ce) {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, ce.HTTPStatus, map[string]any{
		"status":    "unhealthy",
		"code":      ce.Code,
		"message":   ce.Message,
		"details":   ce.Details,
		"tiers":     tiers,
		"timestamp": time.Now(),
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"alive":     true,
		"timestamp": time.Now(),
	})
}

// Administration handlers

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tier")
	if raw == "" {
		s.cache.ClearAll(r.Context())
		s.respondJSON(w, http.StatusOK, map[string]any{"cleared": "all"})
		return
	}

	tier, err := types.ParseTier(raw)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.cache.Clear(r.Context(), &tier)
	s.respondJSON(w, http.StatusOK, map[string]any{"cleared": tier.String()})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	s.cache.Remove(r.Context(), key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	st := s.cache.Strategy()
	s.respondJSON(w, http.StatusOK, strategyRequest{
		Kind:     st.Kind,
		Capacity: st.Capacity,
		TTL:      durationString(st.TTL),
	})
}

// strategyRequest carries durations as Go duration strings.
type strategyRequest struct {
	Kind     types.StrategyKind `json:"kind"`
	Capacity int                `json:"capacity"`
	TTL      string             `json:"ttl,omitempty"`
}

func (s *Server) handleUpdateStrategy(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if !s.decode(w, r, &req) {
		return
	}

	ttl, err := parseOptionalDuration(req.TTL)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	strategy := types.Strategy{Kind: req.Kind, Capacity: req.Capacity, TTL: ttl}
	if err := s.cache.UpdateStrategy(r.Context(), strategy); err != nil {
		s.respondCacheError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"strategy": strategy.String()})
}

type preheatRequest struct {
	Keys     []string              `json:"keys"`
	Strategy cache.PreheatStrategy `json:"strategy"`
}

func (s *Server) handlePreheat(w http.ResponseWriter, r *http.Request) {
	var req preheatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Strategy.Kind == "" {
		req.Strategy = cache.Sequential()
	}

	report := s.cache.PreheatCache(r.Context(), req.Keys, req.Strategy)
	s.respondJSON(w, http.StatusOK, report)
}

type recommendRequest struct {
	Key     string `json:"key"`
	Pattern struct {
		Kind      types.PatternKind `json:"kind"`
		Frequency int               `json:"frequency"`
		Duration  string            `json:"duration"`
	} `json:"pattern"`
}

// RecommendationResponse is a recommendation with string durations.
type RecommendationResponse struct {
	ShouldCache bool   `json:"should_cache"`
	Level       string `json:"level,omitempty"`
	TTL         string `json:"ttl,omitempty"`
	Reason      string `json:"reason"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if !s.decode(w, r, &req) {
		return
	}

	d, err := parseOptionalDuration(req.Pattern.Duration)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := s.cache.GenerateCacheRecommendation(req.Key, types.AccessPattern{
		Kind:      req.Pattern.Kind,
		Frequency: req.Pattern.Frequency,
		Duration:  d,
	})
	s.respondJSON(w, http.StatusOK, RecommendationView(rec))
}

// RecommendationView converts rec for JSON output.
func RecommendationView(rec types.Recommendation) RecommendationResponse {
	resp := RecommendationResponse{ShouldCache: rec.ShouldCache, Reason: rec.Reason}
	if rec.ShouldCache {
		resp.Level = rec.Level.String()
		if rec.TTL != nil {
			resp.TTL = rec.TTL.String()
		}
	}
	return resp
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("API request", map[string]any{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		})
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Helper methods

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Error encoding JSON response", map[string]any{"error": err.Error()})
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, map[string]any{
		"error":     message,
		"timestamp": time.Now(),
	})
}

func (s *Server) respondCacheError(w http.ResponseWriter, err error) {
	var ce *errors.CacheError
	if stderr.As(err, &ce) {
		s.respondJSON(w, ce.HTTPStatus, map[string]any{
			"error":     ce.Message,
			"code":      ce.Code,
			"timestamp": time.Now(),
		})
		return
	}
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func durationString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}
