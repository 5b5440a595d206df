// Package config defines the raffle daemon's configuration and validation.
package config

import (
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// Config is the root configuration. Fields come from a TOML file and are then
// optionally overridden by RAFFLE_* environment variables.
type Config struct {
	Raffle    RaffleConfig   `toml:"raffle"`
	Chain     ChainConfig    `toml:"chain"`
	Wallet    WalletConfig   `toml:"wallet"`
	Postgres  PostgresConfig `toml:"postgres"`
	Redis     RedisConfig    `toml:"redis"`
	S3        S3Config       `toml:"s3"`
	Server    ServerConfig   `toml:"server"`
	Notify    NotifyConfig   `toml:"notify"`
	Simulate  SimulateConfig `toml:"simulate"`
	Mode      string         `toml:"mode"`
	LogLevel  string         `toml:"log_level"`
	LogFormat string         `toml:"log_format"`
}

// RaffleConfig seeds the raffle parameters the first time it starts against
// an empty store. Stored parameters win on later starts.
type RaffleConfig struct {
	Admin           string   `toml:"admin"`
	TicketPrice     string   `toml:"ticket_price"` // base units of the price token
	SwapPercent     int      `toml:"swap_percent"`
	MaxBuyTicketCnt uint64   `toml:"max_buy_ticket_cnt"`
	Capacity        uint64   `toml:"capacity"`
	LockTTL         duration `toml:"lock_ttl"`
	LockWait        duration `toml:"lock_wait"`
}

// ChainConfig locates the contracts used in live mode.
type ChainConfig struct {
	RPCURL         string   `toml:"rpc_url"`
	ChainID        int64    `toml:"chain_id"`
	PriceToken     string   `toml:"price_token"`
	SwapToken      string   `toml:"swap_token"`
	Router         string   `toml:"router"`
	TicketContract string   `toml:"ticket_contract"`
	RewardContract string   `toml:"reward_contract"`
	Treasury       string   `toml:"treasury"`
	SwapDeadline   duration `toml:"swap_deadline"`
	GasMultiple    float64  `toml:"gas_multiple"`
	PollInterval   duration `toml:"poll_interval"`
	ReceiptTimeout duration `toml:"receipt_timeout"`
}

// WalletConfig holds the operator's hot-wallet credentials. The wallet is
// the raffle's custody account in live mode.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters for round archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	SignatureMaxAge duration `toml:"signature_max_age"`
	RateLimit       int      `toml:"rate_limit"`
	RateWindow      duration `toml:"rate_window"`
	TrustedProxies  []string `toml:"trusted_proxies"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// SimulateConfig describes the in-process chain used in simulate mode.
type SimulateConfig struct {
	Accounts []string `toml:"accounts"` // demo buyers to fund: labels or hex addresses
	Funding  int64    `toml:"funding"`  // whole price tokens per account
	Seed     string   `toml:"seed"`     // entropy seed for winner draws
}

// duration lets TOML carry strings such as "30s" or "5m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values in config.example.toml.
func Defaults() Config {
	return Config{
		Raffle: RaffleConfig{
			TicketPrice:     "1000000000",
			SwapPercent:     10,
			MaxBuyTicketCnt: 10,
			Capacity:        100,
			LockTTL:         duration{30 * time.Second},
			LockWait:        duration{10 * time.Second},
		},
		Chain: ChainConfig{
			RPCURL:         "http://localhost:8545",
			SwapDeadline:   duration{100 * time.Second},
			GasMultiple:    1.2,
			PollInterval:   duration{2 * time.Second},
			ReceiptTimeout: duration{2 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "raffle",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "raffle",
		},
		S3: S3Config{
			Enabled:        true,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "raffle-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			SignatureMaxAge: duration{5 * time.Minute},
			RateLimit:       120,
			RateWindow:      duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{string(domain.EventWinner), string(domain.EventRoundCreated)},
		},
		Simulate: SimulateConfig{
			Accounts: []string{"alice", "bob", "carol"},
			Funding:  100_000,
			Seed:     "ticketraffle",
		},
		Mode:      "simulate",
		LogLevel:  "info",
		LogFormat: "json",
	}
}

var validModes = map[string]bool{
	"simulate": true,
	"live":     true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":   true,
	"text":   true,
	"pretty": true,
}

// Live reports whether the daemon runs against a real chain.
func (c *Config) Live() bool {
	return strings.EqualFold(c.Mode, "live")
}

// Params converts the raffle section into initial raffle parameters.
func (c *Config) Params() (domain.Params, error) {
	price, ok := new(big.Int).SetString(strings.TrimSpace(c.Raffle.TicketPrice), 10)
	if !ok {
		return domain.Params{}, fmt.Errorf("raffle: ticket_price %q is not an integer: %w", c.Raffle.TicketPrice, domain.ErrInvalidParameter)
	}
	if c.Raffle.SwapPercent < 0 || c.Raffle.SwapPercent > domain.MaxSwapPercent {
		return domain.Params{}, fmt.Errorf("raffle: swap_percent %d outside 0-%d: %w", c.Raffle.SwapPercent, domain.MaxSwapPercent, domain.ErrInvalidParameter)
	}
	p := domain.Params{
		TicketPrice:    price,
		SwapPercent:    uint8(c.Raffle.SwapPercent),
		MaxPerPurchase: c.Raffle.MaxBuyTicketCnt,
		Capacity:       c.Raffle.Capacity,
	}
	if err := p.Validate(); err != nil {
		return domain.Params{}, fmt.Errorf("raffle: %w", err)
	}
	return p, nil
}

// Validate checks Config for invalid or missing values and returns one error
// describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: simulate, live)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if !validLogFormats[strings.ToLower(c.LogFormat)] {
		errs = append(errs, fmt.Sprintf("unknown log_format %q (valid: json, text, pretty)", c.LogFormat))
	}

	if _, err := c.Params(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Raffle.Admin != "" && !common.IsHexAddress(c.Raffle.Admin) {
		errs = append(errs, fmt.Sprintf("raffle: admin %q is not an address", c.Raffle.Admin))
	}
	if c.Raffle.LockTTL.Duration <= 0 {
		errs = append(errs, "raffle: lock_ttl must be > 0")
	}

	if c.Live() {
		errs = append(errs, c.validateLive()...)
	} else if c.Simulate.Funding < 0 {
		errs = append(errs, "simulate: funding must be >= 0")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		for _, p := range c.Server.TrustedProxies {
			if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
				errs = append(errs, fmt.Sprintf("server: trusted proxy %q is not an IP or CIDR", p))
			}
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validateLive() []string {
	var errs []string

	if c.Raffle.Admin == "" {
		errs = append(errs, "raffle: admin is required in live mode")
	}
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set in live mode")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	for name, v := range map[string]string{
		"price_token":     c.Chain.PriceToken,
		"swap_token":      c.Chain.SwapToken,
		"router":          c.Chain.Router,
		"ticket_contract": c.Chain.TicketContract,
		"reward_contract": c.Chain.RewardContract,
		"treasury":        c.Chain.Treasury,
	} {
		if !common.IsHexAddress(v) {
			errs = append(errs, fmt.Sprintf("chain: %s must be an address, got %q", name, v))
		}
	}
	if c.Chain.SwapDeadline.Duration <= 0 {
		errs = append(errs, "chain: swap_deadline must be > 0")
	}
	if c.Chain.GasMultiple < 1 {
		errs = append(errs, "chain: gas_multiple must be >= 1")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}
	return errs
}
