package config

// RedactedConfig returns a copy of cfg with every secret replaced by a
// placeholder, safe to log at startup.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)

	redact(&out.Postgres.Password)
	redact(&out.Postgres.DSN)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Server.TrustedProxies = append([]string(nil), cfg.Server.TrustedProxies...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Simulate.Accounts = append([]string(nil), cfg.Simulate.Accounts...)
	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
