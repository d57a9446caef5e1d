// Package api exposes the analyses over HTTP with gin
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"medstat/app"
	"medstat/internal/observability"

	"github.com/gin-gonic/gin"
)

// Options configures the HTTP server
type Options struct {
	Port           string
	GinMode        string
	RequestTimeout time.Duration
	MaxUploadBytes int64
	LedgerEnabled  bool
}

// Server owns the gin engine and its handlers
type Server struct {
	router   *gin.Engine
	opts     Options
	analyses *app.AnalysisService
	data     *app.DataService
	metrics  *observability.Metrics
	docs     http.Handler
	logger   *slog.Logger
}

// NewServer builds the router. docs and metrics may be nil.
func NewServer(opts Options, analyses *app.AnalysisService, data *app.DataService, metrics *observability.Metrics, docs http.Handler, logger *slog.Logger) *Server {
	if opts.GinMode != "" {
		gin.SetMode(opts.GinMode)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:   gin.New(),
		opts:     opts,
		analyses: analyses,
		data:     data,
		metrics:  metrics,
		docs:     docs,
		logger:   logger,
	}
	s.router.Use(gin.Recovery(), requestLogger(logger), requestTimeout(opts.RequestTimeout))
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	for _, def := range s.analyses.Registry().Definitions() {
		s.router.POST(def.Route, s.handleAnalysis(def.Name))
	}

	api := s.router.Group("/api")
	{
		api.GET("/analyses", s.handleListAnalyses)
		api.POST("/batch", s.handleBatch)
		api.GET("/runs", s.handleRecentRuns)
		api.POST("/data/upload", s.handleUpload)
		api.POST("/data/redcap", s.handleREDCap)
	}

	s.router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	if s.docs != nil {
		s.router.GET("/docs", gin.WrapH(s.docs))
		s.router.GET("/docs/*topic", gin.WrapH(s.docs))
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.opts.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
