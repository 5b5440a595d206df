// Package app wires the raffle daemon together: chain bindings, stores,
// coordination, the raffle manager, event fan-out and the HTTP API, and runs
// them until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ticketraffle/internal/config"
	"github.com/alanyoungcy/ticketraffle/internal/metrics"
	"github.com/alanyoungcy/ticketraffle/internal/raffle"
	"github.com/alanyoungcy/ticketraffle/internal/server"
	"github.com/alanyoungcy/ticketraffle/internal/server/handler"
	"github.com/alanyoungcy/ticketraffle/internal/server/ws"
	"github.com/alanyoungcy/ticketraffle/internal/service"
)

const shutdownTimeout = 5 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	clock   clockwork.Clock
	version string
	closers []func()
}

// New creates an App. version is reported through the build info metric.
func New(cfg *config.Config, logger *slog.Logger, version string) *App {
	return &App{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "app")),
		clock:   clockwork.NewRealClock(),
		version: version,
	}
}

// Run wires all dependencies, starts the raffle and blocks until ctx is
// cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", mode),
		slog.String("version", a.version),
		slog.String("log_level", a.cfg.LogLevel),
	)
	metrics.BuildInfo.WithLabelValues(a.version, mode).Set(1)

	params, err := a.cfg.Params()
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.clock, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	var svc *service.RaffleService
	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:   mode,
		Status: func() any { return svc.Status() },
		Clock:  a.clock,
	})

	obsCfg := service.ObserverConfig{
		Bus:      deps.Bus,
		Hub:      hub,
		Audit:    deps.Audit,
		Archiver: deps.Archiver,
		Sales:    deps.Store,
		Logger:   a.logger,
	}
	if deps.Notifier.Enabled() {
		obsCfg.Announcer = deps.Notifier
	}
	observer := service.NewObserver(obsCfg)

	mgr, err := raffle.NewManager(ctx, raffle.Config{
		Admin:    deps.Admin,
		Params:   params,
		Custody:  deps.Custody,
		Currency: deps.Currency,
		Bridge:   deps.Bridge,
		Tickets:  deps.Tickets,
		Rewards:  deps.Rewards,
		Entropy:  deps.Entropy,
		Store:    deps.Store,
		Locks:    deps.Locks,
		LockTTL:  a.cfg.Raffle.LockTTL.Duration,
		Sink:     observer,
		Clock:    a.clock,
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("app: raffle manager: %w", err)
	}
	observer.BindRounds(mgr)
	svc = service.NewRaffleService(mgr, deps.Audit, a.logger)

	status := svc.Status()
	a.logger.InfoContext(ctx, "raffle ready",
		slog.Uint64("lottery_id", status.LotteryID),
		slog.Uint64("left_tickets", status.LeftTicketCnt),
		slog.String("ticket_price", status.TicketPrice),
		slog.String("admin", status.Admin),
		slog.String("treasury", status.Treasury),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return observer.Run(gctx)
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})

	if a.cfg.Server.Enabled {
		handlers := server.Handlers{
			Health: handler.NewHealthHandler(deps.Checks, a.clock, a.logger),
			Raffle: handler.NewRaffleHandler(svc, a.logger),
		}
		if deps.ArchiveLoader != nil {
			handlers.Archive = handler.NewArchiveHandler(deps.ArchiveLoader, a.logger)
		}
		srv := server.NewServer(server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			SignatureMaxAge: a.cfg.Server.SignatureMaxAge.Duration,
			RateLimit:       a.cfg.Server.RateLimit,
			RateWindow:      a.cfg.Server.RateWindow.Duration,
			TrustedProxies:  a.cfg.Server.TrustedProxies,
			Clock:           a.clock,
			Replay:          deps.Replay,
		}, handlers, hub, deps.Limiter, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if n := observer.Dropped(); n > 0 {
		a.logger.Warn("event batches dropped during run", slog.Uint64("batches", n))
	}
	return nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
