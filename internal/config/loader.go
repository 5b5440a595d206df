package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over the built-in defaults, then applies
// RAFFLE_* environment overrides. An empty path skips the file. The result is
// not validated; callers run Config.Validate afterwards.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose RAFFLE_* variable is set, so
// secrets can be injected at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "RAFFLE_MODE")
	setStr(&cfg.LogLevel, "RAFFLE_LOG_LEVEL")
	setStr(&cfg.LogFormat, "RAFFLE_LOG_FORMAT")

	// ── Raffle ──
	setStr(&cfg.Raffle.Admin, "RAFFLE_ADMIN")
	setStr(&cfg.Raffle.TicketPrice, "RAFFLE_TICKET_PRICE")
	setInt(&cfg.Raffle.SwapPercent, "RAFFLE_SWAP_PERCENT")
	setUint64(&cfg.Raffle.MaxBuyTicketCnt, "RAFFLE_MAX_BUY_TICKET_CNT")
	setUint64(&cfg.Raffle.Capacity, "RAFFLE_CAPACITY")
	setDuration(&cfg.Raffle.LockTTL, "RAFFLE_LOCK_TTL")
	setDuration(&cfg.Raffle.LockWait, "RAFFLE_LOCK_WAIT")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "RAFFLE_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "RAFFLE_CHAIN_ID")
	setStr(&cfg.Chain.PriceToken, "RAFFLE_CHAIN_PRICE_TOKEN")
	setStr(&cfg.Chain.SwapToken, "RAFFLE_CHAIN_SWAP_TOKEN")
	setStr(&cfg.Chain.Router, "RAFFLE_CHAIN_ROUTER")
	setStr(&cfg.Chain.TicketContract, "RAFFLE_CHAIN_TICKET_CONTRACT")
	setStr(&cfg.Chain.RewardContract, "RAFFLE_CHAIN_REWARD_CONTRACT")
	setStr(&cfg.Chain.Treasury, "RAFFLE_CHAIN_TREASURY")
	setDuration(&cfg.Chain.SwapDeadline, "RAFFLE_CHAIN_SWAP_DEADLINE")
	setFloat64(&cfg.Chain.GasMultiple, "RAFFLE_CHAIN_GAS_MULTIPLE")
	setDuration(&cfg.Chain.PollInterval, "RAFFLE_CHAIN_POLL_INTERVAL")
	setDuration(&cfg.Chain.ReceiptTimeout, "RAFFLE_CHAIN_RECEIPT_TIMEOUT")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "RAFFLE_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "RAFFLE_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "RAFFLE_WALLET_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "RAFFLE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "RAFFLE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RAFFLE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "RAFFLE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "RAFFLE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "RAFFLE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "RAFFLE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "RAFFLE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "RAFFLE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "RAFFLE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "RAFFLE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "RAFFLE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RAFFLE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RAFFLE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RAFFLE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RAFFLE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RAFFLE_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "RAFFLE_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "RAFFLE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "RAFFLE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RAFFLE_S3_REGION")
	setStr(&cfg.S3.Bucket, "RAFFLE_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "RAFFLE_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "RAFFLE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RAFFLE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RAFFLE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RAFFLE_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "RAFFLE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "RAFFLE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "RAFFLE_SERVER_CORS_ORIGINS")
	setStringSlice(&cfg.Server.TrustedProxies, "RAFFLE_SERVER_TRUSTED_PROXIES")
	setDuration(&cfg.Server.SignatureMaxAge, "RAFFLE_SERVER_SIGNATURE_MAX_AGE")
	setInt(&cfg.Server.RateLimit, "RAFFLE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "RAFFLE_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RAFFLE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RAFFLE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RAFFLE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RAFFLE_NOTIFY_EVENTS")

	// ── Simulate ──
	setStringSlice(&cfg.Simulate.Accounts, "RAFFLE_SIMULATE_ACCOUNTS")
	setInt64(&cfg.Simulate.Funding, "RAFFLE_SIMULATE_FUNDING")
	setStr(&cfg.Simulate.Seed, "RAFFLE_SIMULATE_SEED")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
