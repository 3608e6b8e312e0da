package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	// Wallets: every key is replaced, the count stays visible.
	if cfg.Wallets.PrivateKeys != nil {
		out.Wallets.PrivateKeys = make([]string, len(cfg.Wallets.PrivateKeys))
		for i := range out.Wallets.PrivateKeys {
			out.Wallets.PrivateKeys[i] = redacted
		}
	}
	if cfg.Wallets.KeyFiles != nil {
		out.Wallets.KeyFiles = append([]string(nil), cfg.Wallets.KeyFiles...)
	}
	redact(&out.Wallets.KeyPassword)

	redact(&out.Jupiter.APIKey)
	redact(&out.Postgres.DSN)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Assets != nil {
		out.Assets = append([]AssetConfig(nil), cfg.Assets...)
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
