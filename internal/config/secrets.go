package config

import "slices"

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Redis
	redact(&out.Redis.Password)

	// Postgres: a DSN usually embeds the password.
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Notify: the webhook URL is itself a credential.
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Notify.LarkAppSecret)

	// Server
	redact(&out.Server.APIKey)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Feed.Symbols = slices.Clone(cfg.Feed.Symbols)
	out.Markets = slices.Clone(cfg.Markets)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Server.CORSMethods = slices.Clone(cfg.Server.CORSMethods)
	out.Server.PublicPaths = slices.Clone(cfg.Server.PublicPaths)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
