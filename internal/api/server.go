package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/periodical/internal/api/handler"
	mw "github.com/edvin/periodical/internal/api/middleware"
	"github.com/edvin/periodical/internal/core"
)

// CoreDB is the ledger database as used by the server. *pgxpool.Pool
// satisfies it.
type CoreDB interface {
	mw.KeyLookup
	Ping(ctx context.Context) error
}

// MaintenanceState reports whether the site is in maintenance mode and why.
type MaintenanceState interface {
	IsMaintenance() bool
	MaintenanceReason() string
}

type Server struct {
	router         chi.Router
	logger         zerolog.Logger
	services       *core.Services
	coreDB         CoreDB
	temporalClient temporalclient.Client
	maintenance    MaintenanceState
}

func NewServer(logger zerolog.Logger, coreDB CoreDB, temporalClient temporalclient.Client, services *core.Services, maintenance MaintenanceState) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger,
		services:       services,
		coreDB:         coreDB,
		temporalClient: temporalClient,
		maintenance:    maintenance,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
	// Backup routes and probes bypass maintenance.
	s.router.Use(mw.Maintenance(s.maintenance.IsMaintenance, "/healthz", "/readyz", "/metrics", "/api/v1/backups"))
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.coreDB))

		backup := handler.NewBackup(s.services.Backup)
		r.Route("/backups", func(r chi.Router) {
			r.With(mw.RequireScope("backups", "read")).Get("/", backup.List)
			r.With(mw.RequireScope("backups", "read")).Get("/history", backup.History)
			r.With(mw.RequireScope("backups", "read")).Get("/download", backup.Download)
			r.With(mw.RequireScope("backups", "write")).Post("/upload", backup.Upload)
			r.With(mw.RequireScope("backups", "admin")).Post("/create", backup.Create)
			r.With(mw.RequireScope("backups", "admin")).Post("/restore", backup.Restore)
		})
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.coreDB.Ping(ctx); err != nil {
		checks["core_db"] = err.Error()
		healthy = false
	} else {
		checks["core_db"] = "ok"
	}

	if _, err := s.temporalClient.CheckHealth(ctx, &temporalclient.CheckHealthRequest{}); err != nil {
		checks["temporal"] = err.Error()
		healthy = false
	} else {
		checks["temporal"] = "ok"
	}

	if s.maintenance.IsMaintenance() {
		checks["maintenance"] = "active"
		if reason := s.maintenance.MaintenanceReason(); reason != "" {
			checks["maintenance"] = "active: " + reason
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
