// Package httpapi is the gateway's HTTP surface: Rhino.Compute proxy
// routes, AI assistance routes, health and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/softlyplease/soft-compute-gateway/pkg/ai"
	"github.com/softlyplease/soft-compute-gateway/pkg/artifact"
	"github.com/softlyplease/soft-compute-gateway/pkg/batch"
	"github.com/softlyplease/soft-compute-gateway/pkg/compute"
	"github.com/softlyplease/soft-compute-gateway/pkg/logging"
	"github.com/softlyplease/soft-compute-gateway/pkg/params"
	"github.com/softlyplease/soft-compute-gateway/pkg/ratelimit"
	"golang.org/x/sync/semaphore"
)

// Version is reported by the health endpoint.
const Version = "2.0.0"

// ComputeService is the Rhino.Compute client used by the handlers.
type ComputeService interface {
	Execute(ctx context.Context, operation string, geometry json.RawMessage, parameters map[string]any) (*compute.OperationResult, error)
	Optimize(ctx context.Context, upload compute.Upload, p params.TopOptParams) (*compute.OperationResult, error)
	Grasshopper(ctx context.Context, hp params.HopsParams, upload *compute.Upload) (*compute.OperationResult, error)
	Status(ctx context.Context) compute.Status
	Capabilities() compute.Capabilities
	PerformanceMetrics() compute.PerformanceMetrics
	ClearCache(ctx context.Context) error
}

// AIService is the AI assistance service used by the handlers.
type AIService interface {
	AnalyzeGeometry(ctx context.Context, req ai.GeometryAnalysisRequest) (*ai.Result, error)
	OptimizeParameters(ctx context.Context, req ai.ParameterOptimizationRequest) (*ai.Result, error)
	NaturalLanguageToOperation(ctx context.Context, req ai.NaturalLanguageRequest) (*ai.Result, error)
	DiagnoseError(ctx context.Context, req ai.ErrorDiagnosisRequest) (*ai.Result, error)
	PerformanceRecommendations(ctx context.Context, req ai.PerformanceRequest) (*ai.Result, error)
	ValidateConnection(ctx context.Context) ai.ConnectionStatus
	ServiceMetrics() ai.ServiceMetrics
	ClearCache(ctx context.Context) error
}

// ArtifactLogger records uploaded files.
type ArtifactLogger interface {
	Log(asset artifact.Asset, content []byte) (artifact.Asset, error)
}

// Config holds server settings.
type Config struct {
	Environment    string
	MaxUploadBytes int64
	MaxUploadFiles int
	MaxConcurrent  int

	// TrustedProxies is the number of reverse proxies in front of the
	// gateway whose X-Forwarded-For entries are believed. 0 ignores the
	// header.
	TrustedProxies int
}

// Deps are the services behind the routes. Compute is required.
type Deps struct {
	Compute   ComputeService
	AI        AIService
	Artifacts ArtifactLogger
	Limiter   ratelimit.Limiter
}

// Server is the gateway HTTP server.
type Server struct {
	compute   ComputeService
	ai        AIService
	artifacts ArtifactLogger
	limiter   ratelimit.Limiter
	batch     *batch.Runner
	slots     *semaphore.Weighted
	config    Config
	logger    zerolog.Logger
	started   time.Time
	now       func() time.Time

	mu      sync.Mutex
	server  *http.Server
	stopped bool
}

// NewServer creates the HTTP server.
func NewServer(cfg Config, deps Deps) *Server {
	if deps.Compute == nil {
		panic("httpapi: compute service cannot be nil")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = params.MaxUploadBytes
	}
	if cfg.MaxUploadFiles <= 0 {
		cfg.MaxUploadFiles = 10
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	// Batch items draw from the same slots as single operations.
	slots := semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	runner := batch.NewRunner(deps.Compute, batch.Config{MaxConcurrency: cfg.MaxConcurrent, Slots: slots})

	return &Server{
		compute:   deps.Compute,
		ai:        deps.AI,
		artifacts: deps.Artifacts,
		limiter:   deps.Limiter,
		batch:     runner,
		slots:     slots,
		config:    cfg,
		logger:    logging.NewLogger("http"),
		started:   time.Now(),
		now:       time.Now,
	}
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	server := s.server
	s.mu.Unlock()

	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down. A server stopped before Start
// never serves.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	server := s.server
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	s.logger.Info().Msg("Stopping HTTP server")
	return server.Shutdown(ctx)
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(s.requestMeta, logging.Middleware(log.Logger, requestIDFrom))

	router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.rateLimit)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	rhino := api.PathPrefix("/rhino").Subrouter()
	rhino.HandleFunc("/test-connection", s.handleTestConnection).Methods(http.MethodGet)
	rhino.HandleFunc("/vm-health", s.handleVMHealth).Methods(http.MethodGet)
	rhino.HandleFunc("/capabilities", s.handleCapabilities).Methods(http.MethodGet)
	rhino.HandleFunc("/metrics", s.handleComputeMetrics).Methods(http.MethodGet)
	rhino.HandleFunc("/operations", s.handleListOperations).Methods(http.MethodGet)
	rhino.Handle("/operations/{operation}", s.limitConcurrency(http.HandlerFunc(s.handleOperation))).Methods(http.MethodPost)
	rhino.Handle("/topopt", s.limitConcurrency(http.HandlerFunc(s.handleTopOpt))).Methods(http.MethodPost)
	rhino.Handle("/hops", s.limitConcurrency(http.HandlerFunc(s.handleHops))).Methods(http.MethodPost)
	rhino.HandleFunc("/batch", s.handleBatch).Methods(http.MethodPost)
	rhino.HandleFunc("/cache", s.handleClearComputeCache).Methods(http.MethodDelete)
	api.Handle("/optimize", s.limitConcurrency(http.HandlerFunc(s.handleTopOpt))).Methods(http.MethodPost)

	aiRoutes := api.PathPrefix("/ai").Subrouter()
	aiRoutes.Use(s.requireAI)
	aiRoutes.HandleFunc("/geometry/analyze", s.handleAnalyzeGeometry).Methods(http.MethodPost)
	aiRoutes.HandleFunc("/parameters/optimize", s.handleOptimizeParameters).Methods(http.MethodPost)
	aiRoutes.HandleFunc("/natural-language/convert", s.handleNaturalLanguage).Methods(http.MethodPost)
	aiRoutes.HandleFunc("/error/diagnose", s.handleDiagnoseError).Methods(http.MethodPost)
	aiRoutes.HandleFunc("/performance/recommendations", s.handlePerformanceRecommendations).Methods(http.MethodPost)
	aiRoutes.HandleFunc("/metrics", s.handleAIMetrics).Methods(http.MethodGet)
	aiRoutes.HandleFunc("/validate", s.handleAIValidate).Methods(http.MethodGet)
	aiRoutes.HandleFunc("/cache", s.handleClearAICache).Methods(http.MethodDelete)

	router.NotFoundHandler = s.requestMeta(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "Route not found")
	}))

	return router
}
