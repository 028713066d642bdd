package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const envPrefix = "VENUEARB_"

// Load reads the TOML file at path on top of Defaults, loads .env when
// present and applies VENUEARB_* overrides. The result is not validated;
// call Validate afterwards.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	// A missing .env is not an error.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	for i := range cfg.Venues {
		applyVenueDefaults(&cfg.Venues[i])
	}
	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose VENUEARB_* variable is set so
// secrets can be injected at deploy time without touching the file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.Quote, "VENUEARB_ENGINE_QUOTE")
	setStringSlice(&cfg.Engine.Bases, "VENUEARB_ENGINE_BASES")
	setDecimal(&cfg.Engine.TargetProfit, "VENUEARB_ENGINE_TARGET_PROFIT")
	setDecimal(&cfg.Engine.BaseTradePct, "VENUEARB_ENGINE_BASE_TRADE_PCT")
	setDecimal(&cfg.Engine.QuoteTradePct, "VENUEARB_ENGINE_QUOTE_TRADE_PCT")
	setDuration(&cfg.Engine.Cooldown, "VENUEARB_ENGINE_COOLDOWN")
	setDuration(&cfg.Engine.ScanPause, "VENUEARB_ENGINE_SCAN_PAUSE")
	setDuration(&cfg.Engine.BalanceRefresh, "VENUEARB_ENGINE_BALANCE_REFRESH")
	setBool(&cfg.Engine.DryRun, "VENUEARB_ENGINE_DRY_RUN")

	// ── Venues: VENUEARB_VENUE_<NAME>_* ──
	for i := range cfg.Venues {
		v := &cfg.Venues[i]
		prefix := envPrefix + "VENUE_" + envName(v.Name) + "_"
		setStr(&v.APIKey, prefix+"API_KEY")
		setStr(&v.APISecret, prefix+"API_SECRET")
		setStr(&v.SecretFile, prefix+"SECRET_FILE")
		setStr(&v.SecretPassword, prefix+"SECRET_PASSWORD")
		setStr(&v.RESTURL, prefix+"REST_URL")
		setStr(&v.WSURL, prefix+"WS_URL")
	}

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "VENUEARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "VENUEARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VENUEARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VENUEARB_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "VENUEARB_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "VENUEARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "VENUEARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "VENUEARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VENUEARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VENUEARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VENUEARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VENUEARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VENUEARB_POSTGRES_SSL_MODE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "VENUEARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "VENUEARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VENUEARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "VENUEARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VENUEARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VENUEARB_S3_SECRET_KEY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VENUEARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VENUEARB_SERVER_PORT")
	setStr(&cfg.Server.AuthToken, "VENUEARB_SERVER_AUTH_TOKEN")
	setInt(&cfg.Server.RateLimit, "VENUEARB_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VENUEARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VENUEARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VENUEARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VENUEARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "VENUEARB_MODE")
	setStr(&cfg.LogLevel, "VENUEARB_LOG_LEVEL")
}

// envName upper-cases a venue name and maps anything but letters and digits
// to '_', e.g. "binance-eu" -> "BINANCE_EU".
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the variable is
// present, non-empty and parses.
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

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
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
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
