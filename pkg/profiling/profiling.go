// Package profiling serves pprof on a side port and times HTTP handlers.
package profiling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// Profiler manages the pprof server
type Profiler struct {
	enabled bool
	port    string
	server  *http.Server
	log     *zap.Logger
}

// New creates a profiler; it does nothing unless enabled
func New(enabled bool, port string, log *zap.Logger) *Profiler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Profiler{enabled: enabled, port: port, log: log}
}

// Handler returns the profiling routes
func (p *Profiler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/info", infoHandler)
	return mux
}

// Start starts the profiling server on its own port
func (p *Profiler) Start() error {
	if !p.enabled {
		p.log.Debug("profiling disabled")
		return nil
	}

	runtime.SetBlockProfileRate(1)
	runtime.SetMutexProfileFraction(1)

	p.server = &http.Server{
		Addr:              ":" + p.port,
		Handler:           p.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	p.log.Info("starting profiling server", zap.String("port", p.port))

	go func() {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Error("profiling server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully stops the profiling server
func (p *Profiler) Stop(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	if err := p.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("profiling server shutdown error: %w", err)
	}
	return nil
}

// RuntimeInfo is a snapshot of the Go runtime
type RuntimeInfo struct {
	Timestamp  string  `json:"timestamp"`
	Goroutines int     `json:"goroutines"`
	GOMAXPROCS int     `json:"gomaxprocs"`
	NumCPU     int     `json:"num_cpu"`
	Version    string  `json:"version"`
	AllocMB    float64 `json:"alloc_mb"`
	SysMB      float64 `json:"sys_mb"`
	HeapObj    uint64  `json:"heap_objects"`
	NumGC      uint32  `json:"num_gc"`
}

// ReadRuntimeInfo collects the current runtime statistics
func ReadRuntimeInfo() RuntimeInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return RuntimeInfo{
		Timestamp:  time.Now().Format(time.RFC3339),
		Goroutines: runtime.NumGoroutine(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		NumCPU:     runtime.NumCPU(),
		Version:    runtime.Version(),
		AllocMB:    bToMb(m.Alloc),
		SysMB:      bToMb(m.Sys),
		HeapObj:    m.HeapObjects,
		NumGC:      m.NumGC,
	}
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ReadRuntimeInfo())
}

func bToMb(b uint64) float64 {
	return float64(b) / 1024 / 1024
}

// Middleware logs the duration and status of every request
type Middleware struct {
	log *zap.Logger
}

func NewMiddleware(log *zap.Logger) *Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return &Middleware{log: log}
}

// Timed wraps a handler, adding an X-Handler-Name header and a request log line
func (m *Middleware) Timed(name string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("X-Handler-Name", name)
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler.ServeHTTP(wrapped, r)

		m.log.Info("request",
			zap.String("handler", name),
			zap.String("method", r.Method),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)))
	})
}

// responseWriter captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
