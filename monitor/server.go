package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"github.com/najoast/physarum/config"
	"github.com/najoast/physarum/engine"
	"github.com/najoast/physarum/topology"
)

// Engine is the read side of engine.Engine served over HTTP.
type Engine interface {
	Explain(ctx context.Context, event topology.Event) (engine.Explanation, error)
	Stats(ctx context.Context) (topology.Stats, error)
	Snapshot(ctx context.Context) (topology.Snapshot, error)
}

const healthTimeout = 2 * time.Second

// Server is the monitoring HTTP endpoint.
type Server struct {
	cfg       config.MonitorConfig
	engine    Engine
	collector *Collector
	logger    *zap.Logger
	startedAt time.Time

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// NewServer creates a Server. collector may be nil, in which case
// /metrics is not mounted.
func NewServer(cfg config.MonitorConfig, eng Engine, collector *Collector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	return &Server{
		cfg:       cfg,
		engine:    eng,
		collector: collector,
		logger:    logger.Named("monitor"),
		startedAt: time.Now(),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get(s.cfg.HealthPath, s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/topology", s.handleTopology)
	r.Get("/route", s.handleRoute)
	if s.collector != nil {
		r.Method(http.MethodGet, s.cfg.MetricsPath, s.collector.Handler())
	}
	return r
}

// Start binds the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("monitor: server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("monitor: listen on %s: %w", s.cfg.Addr(), err)
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := s.srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("monitor server failed", zap.Error(err))
		}
	}()
	s.logger.Info("monitor server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type healthResponse struct {
	Status string  `json:"status"`
	Uptime string  `json:"uptime"`
	Nodes  int     `json:"nodes"`
	Edges  int     `json:"edges"`
	Error  *string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Uptime: time.Since(s.startedAt).Truncate(time.Second).String()}
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		msg := err.Error()
		resp.Status = "unavailable"
		resp.Error = &msg
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Nodes = stats.NodeCount
	resp.Edges = stats.EdgeCount
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

type routeCandidate struct {
	From              topology.NodeID `json:"from"`
	To                topology.NodeID `json:"to"`
	Strength          float64         `json:"strength"`
	Latency           float64         `json:"latency"`
	TargetReliability float64         `json:"targetReliability"`
	Score             float64         `json:"score"`
}

type routeResponse struct {
	Path       []topology.NodeID `json:"path"`
	Candidates []routeCandidate  `json:"candidates"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ev := topology.Event{SourceType: q.Get("sourceType"), EventType: q.Get("eventType")}

	ex, err := s.engine.Explain(r.Context(), ev)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := routeResponse{Path: ex.Path, Candidates: make([]routeCandidate, 0, len(ex.Candidates))}
	for _, c := range ex.Candidates {
		resp.Candidates = append(resp.Candidates, routeCandidate{
			From:              c.Edge.From,
			To:                c.Edge.To,
			Strength:          c.Edge.Strength,
			Latency:           c.Edge.Latency,
			TargetReliability: c.TargetReliability,
			Score:             finite(c.Score),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// finite clamps the scores a zero-latency edge produces; JSON has no Inf.
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrStopped), errors.Is(err, engine.ErrBusy):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonnet.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
