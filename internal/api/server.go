package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zkreputation/verification-node/internal/config"
	"github.com/zkreputation/verification-node/internal/core/ports"
	"github.com/zkreputation/verification-node/internal/health"
	"github.com/zkreputation/verification-node/internal/log"
	"github.com/zkreputation/verification-node/internal/metrics"
)

const maxBodyBytes = 64 << 10

// Server holds the services behind the http handlers
type Server struct {
	sessions ports.SessionService
	listener ports.ListenerService
	health   *health.Status
	limiter  *WalletLimiter
}

// NewServer is a Server constructor. listener, health and limiter are optional.
func NewServer(sessions ports.SessionService, listener ports.ListenerService, health *health.Status, limiter *WalletLimiter) *Server {
	return &Server{
		sessions: sessions,
		listener: listener,
		health:   health,
		limiter:  limiter,
	}
}

// Handler builds the router. ctx carries the logger used for every request.
func (s *Server) Handler(ctx context.Context, cfg config.API, m *metrics.Metrics) http.Handler {
	mux := chi.NewRouter()
	mux.Use(
		chiMiddleware.RequestID,
		log.ChiMiddleware(ctx),
		chiMiddleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		}),
		chiMiddleware.NoCache,
		m.Instrument,
	)

	mux.Get("/status", s.Status)
	mux.Handle("/metrics", m.Handler())

	mux.Route("/v1", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(30 * time.Second))
		r.Post("/sessions", s.CreateSession)
		r.Get("/sessions/stats", s.GetSessionStats)
		r.Get("/sessions/{id}", s.GetSession)
		r.Post("/sessions/{id}/status", s.UpdateSessionStatus)
		r.Delete("/sessions/{id}", s.CancelSession)
		r.Get("/wallets/{wallet}/sessions/active", s.GetActiveSessions)

		r.Get("/listener", s.GetListener)
		r.Post("/listener/start", s.StartListener)
		r.Post("/listener/stop", s.StopListener)
	})
	return mux
}
