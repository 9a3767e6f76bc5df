// Package server exposes diagnostics, the rule set and the websocket
// moderation and audio endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/grandcat/zeroconf"
	"golang.org/x/time/rate"

	"github.com/soocke/guard-overlay-go/domain/classify"
	"github.com/soocke/guard-overlay-go/domain/pipeline"
	"github.com/soocke/guard-overlay-go/domain/speech"
)

const (
	MDNSService = "_guard-overlay._tcp"
	MDNSDomain  = "local."
)

// RuleStore is the persisted rule set.
type RuleStore interface {
	Snapshot() classify.Rules
	Replace(r classify.Rules) error
}

// AudioIngress accepts remote audio and reports transcripts.
type AudioIngress interface {
	Push(c speech.Chunk)
	Flush()
	Subscribe(fn func(pipeline.Transcript)) func()
}

// Options configure the listener.
type Options struct {
	Addr          string
	MDNS          bool
	InstanceName  string
	RatePerSecond float64
}

// Deps are the backends behind the endpoints. Any of them may be nil, in
// which case the matching route answers 503.
type Deps struct {
	Rules     RuleStore
	Moderator pipeline.Moderator
	Audio     AudioIngress
	Status    func() Status
	Logger    *slog.Logger
}

// Server is the HTTP/websocket front of one guard instance.
type Server struct {
	opts    Options
	deps    Deps
	logger  *slog.Logger
	router  *mux.Router
	limiter *rate.Limiter
	started time.Time

	mu       sync.Mutex
	http     *http.Server
	mdns     *zeroconf.Server
	listener net.Listener
}

func New(opts Options, deps Deps) *Server {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:7878"
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 20
	}
	s := &Server{
		opts:    opts,
		deps:    deps,
		logger:  deps.Logger,
		router:  mux.NewRouter(),
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), int(opts.RatePerSecond)+1),
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Websocket routes stay outside the middleware: the upgrade needs the
	// raw ResponseWriter.
	s.router.HandleFunc("/ws/moderation", s.handleModeration).Methods(http.MethodGet)
	s.router.HandleFunc("/ws/audio", s.handleAudio).Methods(http.MethodGet)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.loggingMiddleware, s.rateMiddleware)
	api.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/rules", s.handleGetRules).Methods(http.MethodGet)
	api.HandleFunc("/rules", s.handlePutRules).Methods(http.MethodPut)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens and serves in the background, advertising over mDNS when enabled.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && s.logger != nil {
			s.logger.Error("http server", "error", err)
		}
	}()
	if s.logger != nil {
		s.logger.Info("server listening", "addr", ln.Addr().String())
	}
	if s.opts.MDNS {
		s.advertise(ln.Addr())
	}
	return ln.Addr(), nil
}

func (s *Server) advertise(addr net.Addr) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return
	}
	name := s.opts.InstanceName
	if name == "" {
		host, _ := os.Hostname()
		name = "guard-overlay-" + host
	}
	txt := []string{"moderation=/ws/moderation", "audio=/ws/audio"}
	srv, err := zeroconf.Register(name, MDNSService, MDNSDomain, tcp.Port, txt, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("mdns register failed", "error", err)
		}
		return
	}
	s.mu.Lock()
	s.mdns = srv
	s.mu.Unlock()
	if s.logger != nil {
		s.logger.Info("mdns advertised", "name", name, "service", MDNSService, "port", tcp.Port)
	}
}

// Stop withdraws the mDNS record and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, md := s.http, s.mdns
	s.http, s.mdns = nil, nil
	s.mu.Unlock()
	if md != nil {
		md.Shutdown()
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Status == nil {
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	st := s.deps.Status()
	st.Uptime = time.Since(s.started).Round(time.Second).String()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetRules(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Rules == nil {
		http.Error(w, "rules unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Rules.Snapshot())
}

func (s *Server) handlePutRules(w http.ResponseWriter, r *http.Request) {
	if s.deps.Rules == nil {
		http.Error(w, "rules unavailable", http.StatusServiceUnavailable)
		return
	}
	var rules classify.Rules
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rules); err != nil {
		http.Error(w, "invalid rules: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.deps.Rules.Replace(rules); err != nil {
		if s.logger != nil {
			s.logger.Error("replace rules", "error", err)
		}
		http.Error(w, "persist rules failed", http.StatusInternalServerError)
		return
	}
	if s.logger != nil {
		s.logger.Info("rules replaced", "badwords", len(rules.Badwords), "whitelist", len(rules.Whitelist))
	}
	writeJSON(w, http.StatusOK, s.deps.Rules.Snapshot())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.logger != nil {
			s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
		}
	})
}

func (s *Server) rateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
