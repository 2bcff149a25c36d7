// Package httpapi exposes the labeler to HTTP consumers: predictions,
// corrections, thresholds, ingestion triggers, export and metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/ingest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Service is the labeler surface served over HTTP
type Service interface {
	Predict(sender, subject string) core.Prediction
	Correct(sender, subject, label string) error
	Stats() core.Stats
	Export() *core.ExportData
	LearnThread(ctx context.Context, threadID string) (int, error)
	Invalidate(sender, subject string)
	ResetPredictions()
	RecentPredictions() []core.TracedPrediction
}

// Thresholds reads and writes the named thresholds
type Thresholds interface {
	All(ctx context.Context) (map[string]float64, error)
	Set(ctx context.Context, name string, value float64) error
}

// Ingester triggers ingestion runs
type Ingester interface {
	Run(ctx context.Context) (*ingest.RunResult, error)
	Resume(ctx context.Context) (*ingest.RunResult, error)
	Status() ingest.Status
}

// Config holds HTTP server settings
type Config struct {
	ListenAddr     string
	RequestTimeout time.Duration
}

// Server serves the HTTP API
type Server struct {
	router     chi.Router
	cfg        Config
	svc        Service
	thresholds Thresholds
	ingester   Ingester
	logger     *zap.Logger

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
}

// New creates a Server. ingester may be nil when no message source is
// configured; gatherer defaults to the default Prometheus registry.
func New(cfg Config, svc Service, thresholds Thresholds, ingester Ingester, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:        cfg,
		svc:        svc,
		thresholds: thresholds,
		ingester:   ingester,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Post("/predict", s.handlePredict)
		r.Post("/corrections", s.handleCorrect)
		r.Get("/stats", s.handleStats)
		r.Get("/export", s.handleExport)

		r.Delete("/predictions", s.handleInvalidate)
		r.Get("/debug/predictions", s.handleRecent)

		r.Get("/thresholds", s.handleThresholds)
		r.Put("/thresholds/{name}", s.handleSetThreshold)

		r.Post("/threads/{id}/learn", s.handleLearnThread)

		r.Route("/ingest", func(r chi.Router) {
			r.Use(s.requireIngester)
			r.Get("/status", s.handleIngestStatus)
			r.Post("/sync", s.handleSync)
			r.Post("/resume", s.handleResume)
		})
	})

	s.router = r
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpSrv != nil {
		return nil
	}

	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpSrv = srv
	s.listener = l

	s.logger.Info("HTTP API starting", zap.String("address", l.Addr().String()))

	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

func (s *Server) requireIngester(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.ingester == nil {
			writeError(w, http.StatusServiceUnavailable, errors.New("no message source configured"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
