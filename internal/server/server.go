// Package server exposes the raffle over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
	"github.com/alanyoungcy/ticketraffle/internal/metrics"
	"github.com/alanyoungcy/ticketraffle/internal/server/handler"
	"github.com/alanyoungcy/ticketraffle/internal/server/middleware"
	"github.com/alanyoungcy/ticketraffle/internal/server/ws"
	"github.com/alanyoungcy/ticketraffle/internal/store/memory"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	SignatureMaxAge time.Duration
	RateLimit       int // requests per window and client; 0 disables
	RateWindow      time.Duration
	// TrustedProxies lists peer IPs or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are honoured for rate limiting.
	TrustedProxies []string
	Clock          clockwork.Clock
	// Replay records used request signatures; nil keeps them in memory.
	Replay domain.ReplayGuard
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Raffle  *handler.RaffleHandler
	Archive *handler.ArchiveHandler // optional
}

// Server is the raffle's HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers routes and wraps them in the middleware chain. hub and
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	replay := cfg.Replay
	if replay == nil {
		replay = memory.NewReplayGuard(cfg.Clock)
	}
	signed := middleware.Signature(cfg.Clock, cfg.SignatureMaxAge, replay)

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/raffle", handlers.Raffle.GetRaffle)
	mux.HandleFunc("GET /api/rounds/{id}", handlers.Raffle.GetRound)
	mux.HandleFunc("GET /api/rounds/{id}/winner", handlers.Raffle.GetWinner)
	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/rounds/{id}/archive", handlers.Archive.GetArchive)
	}
	mux.HandleFunc("GET /api/holders/{address}/tickets", handlers.Raffle.GetTickets)
	mux.HandleFunc("GET /api/holders/{address}/rewards", handlers.Raffle.GetRewards)

	mux.Handle("POST /api/tickets", signed(http.HandlerFunc(handlers.Raffle.BuyTickets)))
	mux.Handle("PUT /api/admin/max-buy", signed(http.HandlerFunc(handlers.Raffle.SetMaxBuy)))
	mux.Handle("PUT /api/admin/swap-percent", signed(http.HandlerFunc(handlers.Raffle.SetSwapPercent)))

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, cfg.TrustedProxies)(h)
	}
	h = metrics.Middleware(routeLabel)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		handler: h,
		logger:  logger,
	}
}

// routeLabel collapses path parameters so metric labels stay bounded.
func routeLabel(r *http.Request) string {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "api" {
		switch parts[1] {
		case "rounds":
			parts[2] = "{id}"
		case "holders":
			parts[2] = "{address}"
		}
	}
	return "/" + strings.Join(parts, "/")
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
