package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	s3blob "github.com/alanyoungcy/ticketraffle/internal/blob/s3"
	"github.com/alanyoungcy/ticketraffle/internal/cache/redis"
	"github.com/alanyoungcy/ticketraffle/internal/config"
	"github.com/alanyoungcy/ticketraffle/internal/domain"
	"github.com/alanyoungcy/ticketraffle/internal/notify"
	"github.com/alanyoungcy/ticketraffle/internal/raffle"
	"github.com/alanyoungcy/ticketraffle/internal/server/handler"
	"github.com/alanyoungcy/ticketraffle/internal/store/postgres"
)

// Dependencies bundles everything the raffle needs to run in either mode.
// It is built by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Ledger
	Admin    common.Address
	Custody  common.Address
	Currency domain.Currency
	Bridge   *raffle.Bridge
	Tickets  domain.TicketIssuer
	Rewards  domain.RewardIssuer
	Entropy  domain.EntropySource

	// Stores
	Store domain.RaffleStore
	Audit domain.AuditStore

	// Coordination, optional
	Locks   domain.LockManager
	Bus     domain.SignalBus
	Limiter domain.RateLimiter
	Replay  domain.ReplayGuard

	// Blob storage, optional
	Archiver      domain.Archiver
	ArchiveLoader handler.ArchiveLoader

	// Notifications
	Notifier *notify.Notifier

	// Health probes reported by GET /api/health.
	Checks map[string]handler.Check
}

// Wire constructs the dependencies for cfg.Mode and returns them together
// with a cleanup function releasing every opened connection.
func Wire(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	var err error
	if cfg.Live() {
		err = wireLive(ctx, cfg, clock, logger, deps, &closers)
	} else {
		err = wireSimulate(cfg, clock, logger, deps)
	}
	if err != nil {
		return fail(err)
	}

	deps.Notifier = newNotifier(cfg, logger)
	return deps, cleanup, nil
}

// wireLive connects to the chain, PostgreSQL, Redis and S3.
func wireLive(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger, deps *Dependencies, closers *[]func()) error {
	chain, err := dialChain(ctx, cfg, clock, logger)
	if err != nil {
		return err
	}
	*closers = append(*closers, chain.client.Close)
	deps.Admin = common.HexToAddress(cfg.Raffle.Admin)
	deps.Custody = chain.client.From()
	deps.Currency = chain.price
	deps.Bridge = chain.bridge
	deps.Tickets = chain.tickets
	deps.Rewards = chain.rewards
	deps.Entropy = chain.entropy
	deps.Checks["chain"] = chain.client.Ping

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return fmt.Errorf("wire: postgres: %w", err)
	}
	*closers = append(*closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.Store = postgres.NewRaffleStore(pgClient.Pool())
	deps.Audit = postgres.NewAuditStore(pgClient.Pool())
	deps.Checks["postgres"] = pgClient.Ping

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("wire: redis: %w", err)
		}
		*closers = append(*closers, func() { _ = redisClient.Close() })

		deps.Locks = redis.NewLockManager(redisClient, redis.LockConfig{
			WaitTimeout: cfg.Raffle.LockWait.Duration,
			Clock:       clock,
			Logger:      logger,
		})
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient, clock)
		deps.Replay = redis.NewReplayGuard(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	} else {
		logger.WarnContext(ctx, "redis disabled: operations are serialized within this process only")
	}

	// --- S3 round archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fmt.Errorf("wire: s3: %w", err)
		}
		archiver := s3blob.NewRoundArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), clock)
		deps.Archiver = archiver
		deps.ArchiveLoader = archiver
		deps.Checks["s3"] = s3Client.Health
	}
	return nil
}

// newNotifier builds the chat notifier from whichever channels are configured.
func newNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, cfg.Notify.Events, logger)
}

// parseAccount accepts a hex address or a label, which maps to a
// deterministic simulated address.
func parseAccount(s string) common.Address {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s)
	}
	return simAddress(s)
}
