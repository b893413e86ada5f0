// Package server exposes the session endpoints over HTTP. Routing, request
// parsing and response shaping live here; the engine itself is
// transport-agnostic.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bdevloed/graph-login-service/internal/config"
	"github.com/bdevloed/graph-login-service/login"
)

// sessionTokenHeader carries the caller-supplied session token; its value is
// the session record's URI.
const sessionTokenHeader = "MU-SESSION-ID"

// allowedGroupsHeader is reset on every outcome that changes the caller's
// authorization scope.
const (
	allowedGroupsHeader = "mu-auth-allowed-groups"
	allowedGroupsClear  = "CLEAR"
)

// Server routes session requests to the login engine.
type Server struct {
	router   *mux.Router
	engine   *login.Service
	logger   zerolog.Logger
	metrics  *Metrics
	registry *prometheus.Registry
	config   *config.Config
}

// New creates the HTTP server around the engine.
func New(cfg *config.Config, engine *login.Service, logger zerolog.Logger) *Server {
	registry := prometheus.NewRegistry()
	s := &Server{
		router:   mux.NewRouter(),
		engine:   engine,
		logger:   logger,
		metrics:  NewMetrics(registry),
		registry: registry,
		config:   cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestLogging, s.recoverPanics)

	s.router.HandleFunc("/sessions", s.CreateSessionHandler()).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/current", s.DeleteSessionHandler()).Methods(http.MethodDelete)
	s.router.HandleFunc("/sessions/current", s.CurrentSessionHandler()).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.HealthHandler()).Methods(http.MethodGet)
	s.router.Handle("/metrics",
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":      "up",
			"application": s.config.AppName,
		})
	}
}

func sessionToken(r *http.Request) string {
	return r.Header.Get(sessionTokenHeader)
}
