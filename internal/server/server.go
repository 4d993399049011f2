package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/b0ase/cardlog/internal/config"
	"github.com/b0ase/cardlog/internal/logging"
	"github.com/b0ase/cardlog/internal/metrics"
	"github.com/b0ase/cardlog/internal/push"
	"github.com/b0ase/cardlog/internal/scanlog"
)

const defaultLimit = 50

// corsMiddleware allows the configured origin to call the API from a browser.
func corsMiddleware(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code. It passes Hijack through so
// the WebSocket upgrade still works behind it.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// metricsMiddleware counts requests by matched route pattern and status.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.APIRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

// Server is the HTTP API and dashboard of cardlogd.
type Server struct {
	httpSrv  *http.Server
	handler  http.Handler
	scans    *scanlog.Service
	hub      *push.Hub
	clock    clock.Clock
	limiter  *rate.Limiter
	maxLimit int
	metrics  bool
	bind     string
	port     int
	log      *zap.SugaredLogger
}

// New builds the server. hub may be nil, in which case /ws is not mounted.
func New(cfg *config.Config, scans *scanlog.Service, hub *push.Hub, clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.New()
	}
	s := &Server{
		scans:    scans,
		hub:      hub,
		clock:    clk,
		maxLimit: cfg.API.MaxLogLimit,
		metrics:  cfg.Metrics.Enabled,
		bind:     cfg.API.Bind,
		port:     cfg.API.Port,
		log:      logging.Named("api"),
	}
	if s.maxLimit <= 0 {
		s.maxLimit = 1000
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.PerSecond > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.PerSecond), burst)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	if s.metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	var h http.Handler = mux
	if s.metrics {
		h = metricsMiddleware(h)
	}
	s.handler = corsMiddleware(cfg.API.CORSOrigin, h)
	s.httpSrv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the full middleware chain.
func (s *Server) Handler() http.Handler { return s.handler }

// Start pre-acquires the port and begins serving HTTP requests.
// If the primary port is in use, it falls back to port+1.
// Returns the actual port bound.
func (s *Server) Start() (int, error) {
	addr := fmt.Sprintf("%s:%d", s.bind, s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		fallbackPort := s.port + 1
		fallbackAddr := fmt.Sprintf("%s:%d", s.bind, fallbackPort)
		ln, err = net.Listen("tcp", fallbackAddr)
		if err != nil {
			return 0, fmt.Errorf("listen on %s and fallback %s: %w", addr, fallbackAddr, err)
		}
		s.log.Warnf("Using fallback port %d (primary %d was in use)", fallbackPort, s.port)
		s.port = fallbackPort
	}
	if s.port == 0 {
		s.port = ln.Addr().(*net.TCPAddr).Port
	}

	s.log.Infof("HTTP API listening on %s:%d", s.bind, s.port)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	}()
	return s.port, nil
}

// Stop gracefully shuts down the server. Push connections are closed by the
// hub's own Close.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.httpSrv.Shutdown(ctx)
	s.log.Info("HTTP server stopped")
}
