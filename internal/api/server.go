package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"signalpipe/internal/config"
)

// healthCheckTimeout is the maximum time allowed for all health probes.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a subsystem health check (database, delivery queue).
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// componentStatus represents the health state of a single subsystem.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the JSON response body for the health check endpoint.
type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// Server is the HTTP chassis: router, global middleware, health checks, and
// route mounting. Domain routes are registered by the entry point through
// the SignalHandler.
type Server struct {
	Config       *config.Config
	HealthProbes []HealthProbe

	logger *slog.Logger
	router *chi.Mux
}

// NewServer prepares the chassis. The caller mounts routes afterwards via
// MountRoutes; this separation lets tests customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// MountRoutes registers the global middleware chain, the /v1 route group,
// and the public health endpoint.
//
// Middleware order matters: the Recoverer is outermost so it catches panics
// from everything below it, the request ID must exist before the logger
// reads it.
func (s *Server) MountRoutes(handler *SignalHandler) {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.logger))

	s.router.Route("/v1", handler.RegisterRoutes)
	s.router.Get("/health", s.HandleHealth)
}

// Handler returns the mounted router for use by http.Server or the Lambda
// adapter.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HandleHealth executes all registered health probes with a short timeout.
// Returns 200 if every probe reports healthy, 503 otherwise. Public, no
// authentication.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	components := make(map[string]componentStatus, len(s.HealthProbes))
	healthy := true
	for _, probe := range s.HealthProbes {
		if err := probe.Check(ctx); err != nil {
			healthy = false
			components[probe.Name()] = componentStatus{
				Status:  "unhealthy",
				Message: err.Error(),
			}
			continue
		}
		components[probe.Name()] = componentStatus{Status: "healthy"}
	}

	resp := healthResponse{Status: "healthy", Components: components}
	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	JSON(w, r, status, resp)
}
