// Package server exposes search over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/poiesic/lexgraph/metrics"
	"github.com/poiesic/lexgraph/search"
)

const (
	DefaultAddr           = ":8080"
	DefaultRequestTimeout = 10 * time.Second
	serviceName           = "lexgraph"
)

// Service is the search surface served over HTTP.
type Service interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	Detail(ctx context.Context, id string) (*search.Detail, error)
	Acts(ctx context.Context) ([]search.ActSummary, error)
}

var _ Service = (*search.Searcher)(nil)

// Server is the HTTP front end.
type Server struct {
	service        Service
	states         search.StateSource
	router         *gin.Engine
	http           *http.Server
	addr           string
	corsOrigins    []string
	requestTimeout time.Duration
	metrics        *metrics.Metrics
	gatherer       prometheus.Gatherer
	logger         *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) error {
		if addr == "" {
			return errors.New("listen address required")
		}
		s.addr = addr
		return nil
	}
}

// WithCORSOrigins sets the allowed origins. Empty allows any origin.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) error {
		s.corsOrigins = origins
		return nil
	}
}

// WithRequestTimeout bounds each request's context.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive, got %s", d)
		}
		s.requestTimeout = d
		return nil
	}
}

// WithMetrics records request metrics and serves gatherer at /metrics.
// A nil gatherer serves the default registry.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) error {
		s.metrics = m
		if gatherer != nil {
			s.gatherer = gatherer
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "server")
		return nil
	}
}

// New creates a server for service. states reports readiness on /health.
func New(service Service, states search.StateSource, opts ...Option) (*Server, error) {
	if service == nil {
		return nil, errors.New("search service required")
	}
	if states == nil {
		return nil, search.ErrSourceRequired
	}
	s := &Server{
		service:        service,
		states:         states,
		addr:           DefaultAddr,
		requestTimeout: DefaultRequestTimeout,
		gatherer:       prometheus.DefaultGatherer,
		logger:         slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.setup()
	return s, nil
}

func (s *Server) setup() {
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(requestID())
	s.router.Use(otelgin.Middleware(serviceName))
	s.router.Use(accessLog(s.logger, s.metrics))
	s.router.Use(s.corsMiddleware())

	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := s.router.Group("/api")
	api.Use(timeout(s.requestTimeout))
	{
		api.GET("/search", s.searchGet)
		api.POST("/search", s.searchPost)
		api.GET("/provisions/:id", s.provision)
		api.GET("/acts", s.acts)
	}

	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Authorization", "X-Requested-With", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(s.corsOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.corsOrigins
	}
	return cors.New(cfg)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("stopping server")
	return s.http.Shutdown(ctx)
}
