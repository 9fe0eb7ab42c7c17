// Package api provides the HTTP API server and handlers for task library sync.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/listenupapp/tasksync-server/internal/auth"
	"github.com/listenupapp/tasksync-server/internal/config"
	"github.com/listenupapp/tasksync-server/internal/ratelimit"
	"github.com/listenupapp/tasksync-server/internal/service"
	"github.com/listenupapp/tasksync-server/internal/share"
	"github.com/listenupapp/tasksync-server/internal/store"
)

// Services groups the dependencies handlers call into.
type Services struct {
	Tasks   *service.TaskService
	Tokens  *auth.TokenService
	Store   store.RecordStore
	Cache   share.Cache
	Limiter *ratelimit.KeyedRateLimiter
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services *Services
	router   *chi.Mux
	api      huma.API
	logger   *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, cfg *config.Config, logger *slog.Logger) *Server {
	if services.Cache == nil {
		services.Cache = share.NopCache{}
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	router.Use(requestTimeout(cfg.Server.RequestTimeout))
	router.Use(authMiddleware(services.Tokens))
	if services.Limiter != nil {
		router.Use(rateLimitMiddleware(services.Limiter, retryAfter(cfg.RateLimit), logger))
	}

	s := &Server{
		services: services,
		router:   router,
		api:      humachi.New(router, newHumaConfig()),
		logger:   logger,
	}
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerTaskRoutes()
	s.registerShareRoutes()

	return s
}

func newHumaConfig() huma.Config {
	humaConfig := huma.DefaultConfig("TaskSync API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	return humaConfig
}

// retryAfter is how long one token takes to refill.
func retryAfter(cfg config.RateLimitConfig) time.Duration {
	if cfg.PerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(cfg.PerMinute)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}
