package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

const addr = "0x00000000000000000000000000000000000000aa"

func liveConfig() Config {
	cfg := Defaults()
	cfg.Mode = "live"
	cfg.Raffle.Admin = addr
	cfg.Wallet.PrivateKey = "0xabc"
	cfg.Chain.PriceToken = addr
	cfg.Chain.SwapToken = addr
	cfg.Chain.Router = addr
	cfg.Chain.TicketContract = addr
	cfg.Chain.RewardContract = addr
	cfg.Chain.Treasury = addr
	return cfg
}

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Live())

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, 0, p.TicketPrice.Cmp(big.NewInt(1_000_000_000)))
	assert.EqualValues(t, 10, p.SwapPercent)
	assert.EqualValues(t, 10, p.MaxPerPurchase)
	assert.EqualValues(t, 100, p.Capacity)
}

func TestValidate_Live(t *testing.T) {
	cfg := liveConfig()
	require.NoError(t, cfg.Validate())

	cfg.Chain.Router = "not-an-address"
	cfg.Wallet.PrivateKey = ""
	cfg.Raffle.Admin = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain: router must be an address")
	assert.Contains(t, err.Error(), "wallet: either private_key")
	assert.Contains(t, err.Error(), "raffle: admin is required")
}

func TestValidate_Raffle(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad price", func(c *Config) { c.Raffle.TicketPrice = "1.5" }, "ticket_price"},
		{"zero price", func(c *Config) { c.Raffle.TicketPrice = "0" }, "ticket price must be positive"},
		{"swap over 100", func(c *Config) { c.Raffle.SwapPercent = 101 }, "swap_percent"},
		{"zero max", func(c *Config) { c.Raffle.MaxBuyTicketCnt = 0 }, "max per purchase"},
		{"zero capacity", func(c *Config) { c.Raffle.Capacity = 0 }, "capacity"},
		{"bad admin", func(c *Config) { c.Raffle.Admin = "0x12" }, "admin"},
		{"bad mode", func(c *Config) { c.Mode = "paper" }, "unknown mode"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"half telegram", func(c *Config) { c.Notify.TelegramToken = "t" }, "telegram_chat_id"},
		{"bad proxy", func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/8", "proxy"} }, "trusted proxy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParams_InvalidParameter(t *testing.T) {
	cfg := Defaults()
	cfg.Raffle.TicketPrice = "abc"
	_, err := cfg.Params()
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raffle.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "simulate"
log_level = "debug"

[raffle]
ticket_price = "500"
capacity = 7
lock_ttl = "45s"

[server]
port = 9100
`), 0o600))

	t.Setenv("RAFFLE_MAX_BUY_TICKET_CNT", "3")
	t.Setenv("RAFFLE_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("RAFFLE_CHAIN_SWAP_DEADLINE", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "500", cfg.Raffle.TicketPrice)
	assert.EqualValues(t, 7, cfg.Raffle.Capacity)
	assert.EqualValues(t, 3, cfg.Raffle.MaxBuyTicketCnt)
	assert.Equal(t, 45*time.Second, cfg.Raffle.LockTTL.Duration)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 2*time.Minute, cfg.Chain.SwapDeadline.Duration)
	// untouched defaults survive
	assert.Equal(t, 10, cfg.Raffle.SwapPercent)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := liveConfig()
	cfg.Postgres.Password = "pw"
	cfg.S3.SecretKey = "s3"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.DiscordWebhookURL)
	assert.Empty(t, red.Redis.Password)
	assert.Equal(t, "0xabc", cfg.Wallet.PrivateKey, "original must be untouched")

	red.Server.CORSOrigins[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
}

func TestLoad_ExampleFileMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	def := Defaults()
	assert.Equal(t, def.Raffle, cfg.Raffle)
	assert.Equal(t, def.Server, cfg.Server)
	assert.Equal(t, def.Simulate, cfg.Simulate)
	assert.Equal(t, def.Notify.Events, cfg.Notify.Events)
}
