package config

import "maps"

const redacted = "***"

// RedactedConfig returns a copy of cfg with every secret replaced by "***",
// for logging the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	out.Venues = make([]VenueConfig, len(cfg.Venues))
	for i, v := range cfg.Venues {
		redact(&v.APIKey)
		redact(&v.APISecret)
		redact(&v.SecretPassword)
		v.Rules = maps.Clone(v.Rules)
		v.PaperBalances = maps.Clone(v.PaperBalances)
		v.PaperWithdraw = maps.Clone(v.PaperWithdraw)
		out.Venues[i] = v
	}

	redact(&out.Redis.Password)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.AuthToken)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Engine.Bases = append([]string(nil), cfg.Engine.Bases...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	return out
}

// redact replaces a non-empty string with the placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
