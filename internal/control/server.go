// Package control serves a running sandbox over a loopback HTTP API and
// provides the matching client used by the CLI.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

// Target is the part of a sandbox.Manager the API exposes.
type Target interface {
	Status() sandbox.Status
	Events() []audit.Event
	Exec(ctx context.Context, req sandbox.ExecRequest) sandbox.ExecResult
	Recover(ctx context.Context) sandbox.State
	Stop(ctx context.Context)
	BrowserCDPEndpoint() string
}

// Server is the control API server.
type Server struct {
	target  Target
	metrics http.Handler
	onStop  func()
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts a handler at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithStopHook registers a function called after POST /v1/stop.
func WithStopHook(fn func()) Option {
	return func(s *Server) { s.onStop = fn }
}

// NewServer creates a Server for target.
func NewServer(target Target, opts ...Option) *Server {
	s := &Server{target: target}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/events", s.handleEvents)
		r.Post("/exec", s.handleExec)
		r.Post("/recover", s.handleRecover)
		r.Post("/stop", s.handleStop)
		r.Get("/browser", s.handleBrowser)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.Debug("control request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}

// Listen opens a TCP listener on a loopback address.
func Listen(addr string) (net.Listener, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return nil, fmt.Errorf("control API must listen on a loopback address, got %q", host)
	}
	return net.Listen("tcp", addr)
}

// Serve serves the API on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Debug("control API listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// --- Request/Response types ---

// ExecRequest is the body of POST /v1/exec.
type ExecRequest struct {
	Command   string            `json:"command,omitempty"`
	Argv      []string          `json:"argv,omitempty"`
	Workdir   string            `json:"workdir,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Stdin     string            `json:"stdin,omitempty"`
	TimeoutMs int64             `json:"timeout_ms,omitempty"`
}

type stateResponse struct {
	State sandbox.State `json:"state"`
}

type browserResponse struct {
	Endpoint string `json:"endpoint"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Handlers ---

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.target.Status())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := s.target.Events()

	if t := r.URL.Query().Get("type"); t != "" {
		filtered := events[:0]
		for _, e := range events {
			if string(e.Type) == t {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n < len(events) {
			events = events[len(events)-n:]
		}
	}

	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	var req ExecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Command == "" && len(req.Argv) == 0 {
		writeError(w, http.StatusBadRequest, "command or argv is required")
		return
	}

	execReq := sandbox.ExecRequest{
		Command: req.Command,
		Argv:    req.Argv,
		Workdir: req.Workdir,
		Env:     req.Env,
		Timeout: time.Duration(req.TimeoutMs) * time.Millisecond,
	}
	if req.Stdin != "" {
		execReq.Stdin = strings.NewReader(req.Stdin)
	}

	writeJSON(w, http.StatusOK, s.target.Exec(r.Context(), execReq))
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{State: s.target.Recover(r.Context())})
}

// handleStop detaches from the request so a client that hangs up does not
// cancel container removal halfway.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.target.Stop(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, stateResponse{State: s.target.Status().State})
	if s.onStop != nil {
		s.onStop()
	}
}

func (s *Server) handleBrowser(w http.ResponseWriter, r *http.Request) {
	endpoint := s.target.BrowserCDPEndpoint()
	if endpoint == "" {
		writeError(w, http.StatusNotFound, "browser companion not running")
		return
	}
	writeJSON(w, http.StatusOK, browserResponse{Endpoint: endpoint})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
