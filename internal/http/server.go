package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"satis/internal/cache"
	"satis/internal/log"
	"satis/internal/metrics"
	"satis/internal/services"
)

// Options carries the optional collaborators of the server.
type Options struct {
	Logger  *log.Logger
	Metrics *metrics.Metrics
	// Gatherer backs /metrics; nil leaves the route unmounted.
	Gatherer prometheus.Gatherer
	// Ready reports whether the ledger store is reachable.
	Ready func(context.Context) error
	// RateLimit is the number of mutating requests a client may make per
	// minute. Zero means 60.
	RateLimit int
}

type Server struct {
	http.Server
	ctl      *services.Controller
	logger   *log.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	ready    func(context.Context) error
	limiter  *rateLimiter
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, ctl *services.Controller, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Ready == nil {
		opts.Ready = func(context.Context) error { return nil }
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 60
	}

	s := &Server{
		ctl:      ctl,
		logger:   opts.Logger.WithComponent(log.ComponentHTTP),
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		ready:    opts.Ready,
		limiter:  newRateLimiter(opts.RateLimit),
	}
	s.Server = http.Server{
		Addr:           addr,
		Handler:        s.routes(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	return s
}

// Limiters exposes the per-client limiter table so idle clients can be
// swept by the cache manager.
func (s *Server) Limiters() cache.Cleaner {
	return s.limiter.clients
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(middleware.GetReqID))
	r.Use(s.observe)
	r.Use(securityHeaders)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", s.handleCatalog)
		r.Get("/days/{date}", s.handleDay)
		r.Get("/reports", s.handleReport)
		r.Get("/operations/{id}", s.handleOperation)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/sales", s.handleCreateSale)
			r.Put("/sales/{id}", s.handleUpdateSale)
			r.Delete("/sales/{id}", s.handleDeleteSale)
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ready(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
