package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leaseguard/kestrel/internal/domain"
	"github.com/leaseguard/kestrel/internal/metrics"
	"github.com/leaseguard/kestrel/internal/screen"
)

// Server is the HTTP front door: routing, middleware, and lifecycle.
type Server struct {
	router *chi.Mux
	server *http.Server
	config domain.ServerConfig
}

// NewServer wires the handler set into a routed HTTP server.
func NewServer(cfg *domain.Config, repo domain.Repository, cache domain.Cache, bus domain.EventBus, svc *screen.Service, met *metrics.Metrics, version string) *Server {
	s := &Server{config: cfg.Server}
	s.router = buildRouter(NewHandler(repo, cache, bus, svc, met, cfg, version))
	return s
}

func buildRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// RealIP runs first so the access log sees the client address, not
	// the load balancer's. Compress sits closest to the handlers.
	r.Use(middleware.RealIP)
	r.Use(CORSMiddleware)
	r.Use(RecoverMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Compress(5))

	// Probes and metrics stay outside the tenant gate so load balancers
	// and Prometheus need no headers.
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Post("/screenings", h.CreateScreening)
		r.Get("/screenings/{id}", h.GetScreening)
		r.Get("/applicants/{id}/report", h.GetApplicantReport)

		r.Route("/listings", func(r chi.Router) {
			r.Post("/", h.CreateListing)
			r.Get("/", h.ListListings)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetListing)
				r.Delete("/", h.DeleteListing)
				r.Put("/criteria", h.UpdateListingCriteria)
				r.Get("/applications", h.ListListingApplications)
			})
		})

		r.Post("/applications", h.CreateApplication)
		r.Get("/applications/{id}", h.GetApplication)
		r.Post("/match", h.ComputeMatch)
	})

	return r
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the mux so tests can drive requests without a socket.
func (s *Server) Router() *chi.Mux {
	return s.router
}
