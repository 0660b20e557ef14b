package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/region-compare-service/internal/domain"
	"github.com/couchcryptid/region-compare-service/internal/matching"
	"github.com/couchcryptid/region-compare-service/internal/observability"
	"github.com/couchcryptid/region-compare-service/internal/preference"
)

// RegionService is the query surface served over HTTP. Both
// *matching.Engine and *matching.CachedEngine satisfy it.
type RegionService interface {
	FindMatches(sourceID string, q matching.MatchQuery) []domain.Match
	MatchRegion(source domain.Region, q matching.MatchQuery) []domain.Match
	ResolveWeights(q matching.MatchQuery) (domain.Weights, string)
	GetRegion(id string) (domain.Region, bool)
	SearchRegions(query string) []domain.Region
	FilterRegions(f matching.Filter) []domain.Region
	AggregateRegions(componentIDs []string, name string) (domain.Region, bool)
	Stats() matching.Stats
	Indicators() ([]domain.Indicator, []domain.Category)
	Presets() []domain.Preset
}

// EventPublisher accepts query events without blocking.
type EventPublisher interface {
	Publish(ev domain.QueryEvent) bool
}

// Deps are the collaborators the server routes requests to. Events and
// Metrics may be nil.
type Deps struct {
	Engine      RegionService
	Ready       sharedobs.ReadinessChecker
	Preferences preference.Store
	Events      EventPublisher
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Server exposes the region API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	engine     RegionService
	prefs      preference.Store
	events     EventPublisher
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the API routes and /healthz, /readyz,
// and /metrics.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		engine:  deps.Engine,
		prefs:   deps.Preferences,
		events:  deps.Events,
		metrics: deps.Metrics,
		logger:  deps.Logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/regions", s.handleFilterRegions)
	mux.HandleFunc("GET /api/regions/search", s.handleSearchRegions)
	mux.HandleFunc("GET /api/regions/{id}", s.handleGetRegion)
	mux.HandleFunc("GET /api/regions/{id}/matches", s.handleMatches)
	mux.HandleFunc("POST /api/aggregates", s.handleAggregate)
	mux.HandleFunc("GET /api/indicators", s.handleIndicators)
	mux.HandleFunc("GET /api/presets", s.handlePresets)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/preferences/language", s.handleGetLanguage)
	mux.HandleFunc("PUT /api/preferences/language", s.handlePutLanguage)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) observe(op string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.Queries.WithLabelValues(op).Inc()
	s.metrics.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *Server) publish(ev domain.QueryEvent) {
	if s.events == nil {
		return
	}
	if !s.events.Publish(ev) {
		s.logger.Debug("query event dropped", "event_id", ev.ID, "kind", ev.Kind)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
