// Package server runs the router's HTTP side channel: Prometheus metrics, a
// health probe backed by the engine state and the active rule listing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"kafkarouter/internal/router"
	"kafkarouter/internal/rules"
)

// StateSource reports the engine lifecycle state.
type StateSource interface {
	State() router.State
}

// Server serves /metrics, /healthz and /rules.
type Server struct {
	logger     zerolog.Logger
	addr       string
	httpServer *http.Server
	router     *mux.Router
	actualAddr string
	mu         sync.RWMutex
}

// New builds the server. metrics may be nil, in which case /metrics is not
// routed.
func New(port int, metrics http.Handler, state StateSource, table *rules.RouteTable, logger zerolog.Logger) *Server {
	r := mux.NewRouter()
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", healthzHandler(state)).Methods(http.MethodGet)
	r.HandleFunc("/rules", rulesHandler(table)).Methods(http.MethodGet)

	addr := fmt.Sprintf(":%d", port)
	return &Server{
		logger: logger.With().Str("component", "HTTPServer").Logger(),
		addr:   addr,
		router: r,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves in a background goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info().Str("address", s.Addr()).Msg("HTTP server starting to listen")
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.actualAddr != "" {
		return s.actualAddr
	}
	return s.addr
}

// Shutdown stops the server within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error during HTTP server shutdown")
		return err
	}
	return nil
}

type healthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

func healthzHandler(state StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		current := state.State()
		resp := healthResponse{Status: "ok", State: current.String()}
		code := http.StatusOK
		if current != router.Starting && current != router.Running {
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

type ruleResponse struct {
	Order int               `json:"order"`
	Rule  map[string]string `json:"rule"`
}

func rulesHandler(table *rules.RouteTable) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		listed := table.Rules()
		resp := make([]ruleResponse, 0, len(listed))
		for i, rule := range listed {
			resp = append(resp, ruleResponse{Order: i + 1, Rule: rule.Describe()})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
