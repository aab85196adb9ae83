// Path: internal/delivery/rest/server.go
package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"chanbroker/internal/config"
	"chanbroker/internal/logger"
)

// Server is the HTTP server for the read-only admin API.
type Server struct {
	httpServer *http.Server
}

// NewServer creates and configures a new admin API server.
func NewServer(cfg config.ServerConfig, service registryService, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("rest"))
	handlers := NewChannelHandlers(service, log)

	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      NewHandler(cfg, handlers, log),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  15 * time.Second,
		},
	}
}

// NewHandler builds the routed, rate-limited handler tree.
func NewHandler(cfg config.ServerConfig, handlers *ChannelHandlers, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /channels", handlers.ListChannels)
	mux.HandleFunc("GET /channels/{name}", handlers.GetChannel)
	mux.HandleFunc("GET /healthz", handlers.Health)

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.BurstLimit
	if burst < 1 {
		burst = 1
	}
	return rateLimit(rate.NewLimiter(limit, burst), log, mux)
}

// rateLimit rejects requests beyond the limiter's budget with 429.
func rateLimit(limiter *rate.Limiter, log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			log.WarnContext(r.Context(), "request rate limited",
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.StatusCode(http.StatusTooManyRequests),
			)
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
