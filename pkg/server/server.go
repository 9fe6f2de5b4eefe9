package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kacperjurak/goedxcore/pkg/config"
	"github.com/kacperjurak/goedxcore/pkg/handlers"
	"github.com/kacperjurak/goedxcore/pkg/profiling"
	"github.com/kacperjurak/goedxcore/pkg/webhook"
	"github.com/kacperjurak/goedxcore/pkg/worker"
)

// Server represents the HTTP server with all dependencies
type Server struct {
	config     *config.Config
	workerPool *worker.Pool
	httpServer *http.Server
	profiler   *profiling.Profiler
	middleware *profiling.Middleware
	batch      *handlers.BatchHandler
	log        *zap.Logger
}

// Options holds configuration for creating a new server
type Options struct {
	Config    *config.Config
	Processor handlers.ProcessorFunc
	Logger    *zap.Logger
}

// New creates a new server instance
func New(opts Options) *Server {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	sc := opts.Config.Server

	var send worker.WebhookFunc
	if sc.WebhookURL != "" {
		send = webhook.NewClient(sc.WebhookURL, sc.WebhookTimeout.Duration, opts.Logger.Named("webhook")).Send
	}

	s := &Server{
		config: opts.Config,
		workerPool: worker.New(worker.Options{
			Workers:   sc.WorkerCount,
			QueueSize: sc.QueueSize,
			Processor: worker.ProcessorFunc(opts.Processor),
			Webhook:   send,
			Logger:    opts.Logger.Named("worker"),
		}),
		profiler:   profiling.New(sc.EnableProfiling, sc.ProfilingPort, opts.Logger.Named("profiling")),
		middleware: profiling.NewMiddleware(opts.Logger.Named("http")),
		log:        opts.Logger,
	}
	s.setupRoutes(opts.Processor)
	return s
}

// setupRoutes configures HTTP routes and handlers
func (s *Server) setupRoutes(processor handlers.ProcessorFunc) {
	mux := http.NewServeMux()
	maxBytes := s.config.Server.MaxBodyBytes

	refine := handlers.NewRefineHandler(processor, maxBytes, s.log.Named("refine"))
	s.batch = handlers.NewBatchHandler(s.workerPool, maxBytes, s.log.Named("batch"))

	mux.Handle("/refine", s.middleware.Timed("refine-single", refine))
	mux.Handle("/refine/batch", s.middleware.Timed("refine-batch", s.batch))
	mux.HandleFunc("/health", s.healthHandler)

	s.httpServer = &http.Server{
		Addr:              ":" + s.config.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		// single refinements can run for a while
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

// Handler exposes the routes, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// BatchHandler returns the batch route's handler
func (s *Server) BatchHandler() *handlers.BatchHandler {
	return s.batch
}

// healthHandler provides a simple health check endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	info := profiling.ReadRuntimeInfo()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","timestamp":"` + info.Timestamp + `"}`))
}

// Start runs the HTTP server until Shutdown is called
func (s *Server) Start() error {
	if err := s.profiler.Start(); err != nil {
		s.log.Error("failed to start profiler", zap.Error(err))
	}

	s.log.Info("starting HTTP server",
		zap.String("port", s.config.Server.Port),
		zap.Strings("endpoints", []string{"/refine", "/refine/batch", "/health"}))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and stops the workers
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server")

	err := s.httpServer.Shutdown(ctx)
	if perr := s.profiler.Stop(ctx); perr != nil {
		s.log.Warn("profiler shutdown error", zap.Error(perr))
	}
	s.workerPool.Shutdown()

	s.log.Info("server shutdown complete")
	return err
}
