// Package api exposes the reconciliation core over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/metrics"
	"github.com/sells-group/provider-reconcile/internal/reconcile"
	"github.com/sells-group/provider-reconcile/internal/resilience"
	"github.com/sells-group/provider-reconcile/internal/store"
)

// Config holds the HTTP surface settings.
type Config struct {
	CORSOrigins   []string
	ExplainLimit  int
	ExplainWindow time.Duration
}

// Server routes HTTP requests to the reconciliation engine and store.
type Server struct {
	engine    *reconcile.Engine
	store     store.Store
	explainer reconcile.Explainer
	breakers  *resilience.Breakers
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	limiter   *clientLimiter
	origins   []string
}

// Option configures a Server.
type Option func(*Server)

// WithExplainer replaces the template explainer.
func WithExplainer(x reconcile.Explainer) Option {
	return func(s *Server) { s.explainer = x }
}

// WithBreakers reports circuit breaker states on /health.
func WithBreakers(b *resilience.Breakers) Option {
	return func(s *Server) { s.breakers = b }
}

// WithMetrics serves g on /metrics and records rejected explain requests on m.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// New creates a Server.
func New(engine *reconcile.Engine, st store.Store, cfg Config, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		store:     st,
		explainer: reconcile.Template{},
		gatherer:  prometheus.DefaultGatherer,
		limiter:   newClientLimiter(cfg.ExplainLimit, cfg.ExplainWindow),
		origins:   cfg.CORSOrigins,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/providers", func(r chi.Router) {
		r.Get("/", s.handleListProviders)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetProvider)
			r.Get("/details", s.handleProviderDetails)
			r.Get("/qa", s.handleProviderQA)
			r.Get("/ocr", s.handleProviderOCR)
			r.Post("/reconcile", s.handleReconcile)
		})
	})

	r.Post("/run-batch", s.handleRunBatch)
	r.Get("/runs", s.handleListRuns)

	r.Route("/manual-review", func(r chi.Router) {
		r.Get("/", s.handleListReview)
		r.Post("/{id}/{action}", s.handleResolveReview)
	})

	r.Post("/scores/recompute", s.handleRecomputeScores)
	r.Get("/stats", s.handleStats)

	r.With(s.limiter.middleware(s.metrics.IncExplainRejected)).Post("/explain", s.handleExplain)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	code := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: store ping failed", zap.Error(err))
		body["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	if s.breakers != nil {
		body["breakers"] = s.breakers.Snapshot()
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeError maps domain errors onto status codes. Unclassified errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case store.IsNotFound(err):
		writeMessage(w, http.StatusNotFound, "not found")
	case eris.Is(err, reconcile.ErrAlreadyResolved):
		writeMessage(w, http.StatusConflict, "review item already resolved")
	case eris.Is(err, reconcile.ErrInvalidAction):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeMessage(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
