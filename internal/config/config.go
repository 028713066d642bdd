// Package config defines the engine configuration: TOML file, .env and
// VENUEARB_* environment overrides, defaults and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/venuearb/internal/domain"
)

// Run modes.
const (
	ModeLive    = "live"
	ModePaper   = "paper"
	ModeMonitor = "monitor"
)

// Venue kinds.
const (
	KindBinance = "binance"
	KindPaper   = "paper"
)

// Config is the root configuration structure.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Venues   []VenueConfig  `toml:"venues"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the scheduler and executor settings.
type EngineConfig struct {
	Quote string   `toml:"quote"`
	Bases []string `toml:"bases"`
	// TargetProfit is the required gain multiplier, e.g. 1.005 for 0.5%.
	TargetProfit   decimal.Decimal `toml:"target_profit"`
	BaseTradePct   decimal.Decimal `toml:"base_trade_pct"`
	QuoteTradePct  decimal.Decimal `toml:"quote_trade_pct"`
	Cooldown       duration        `toml:"cooldown"`
	ScanPause      duration        `toml:"scan_pause"`
	BalanceRefresh duration        `toml:"balance_refresh"`
	LockTTL        duration        `toml:"lock_ttl"`
	DedupWindow    duration        `toml:"dedup_window"`
	// DryRun records planned executions without submitting orders. Monitor
	// mode forces it on.
	DryRun bool `toml:"dry_run"`
}

// VenueConfig describes one trading venue.
type VenueConfig struct {
	Name string `toml:"name"`
	Kind string `toml:"kind"`
	// Fee is the fraction of traded value kept after fees, e.g. 0.999.
	Fee     decimal.Decimal `toml:"fee"`
	RESTURL string          `toml:"rest_url"`
	WSURL   string          `toml:"ws_url"`

	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	// SecretFile holds the API secret encrypted with SecretPassword.
	SecretFile     string `toml:"secret_file"`
	SecretPassword string `toml:"secret_password"`

	OptimisticBalances bool     `toml:"optimistic_balances"`
	DepthLimit         int      `toml:"depth_limit"`
	RateLimit          int      `toml:"rate_limit"`
	RateWindow         duration `toml:"rate_window"`

	// Rules override the venue's reported market rules, keyed "BASE-QUOTE".
	Rules map[string]RuleConfig `toml:"rules"`

	// Paper venues only.
	PaperBalances map[string]decimal.Decimal `toml:"paper_balances"`
	PaperWithdraw map[string]bool            `toml:"paper_withdraw"`
	// PaperMarketData feeds the paper books from the public endpoints in
	// RESTURL and WSURL.
	PaperMarketData bool `toml:"paper_market_data"`
}

// RuleConfig overrides the market rules of one pair.
type RuleConfig struct {
	BasePrecision  int32           `toml:"base_precision"`
	QuotePrecision int32           `toml:"quote_precision"`
	PricePrecision int32           `toml:"price_precision"`
	MinTradeVolume decimal.Decimal `toml:"min_trade_volume"`
	MinQuantity    decimal.Decimal `toml:"min_quantity"`
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
	// MirrorBooks copies every accepted book side to Redis.
	MirrorBooks bool `toml:"mirror_books"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig schedules the execution archive job.
type ArchiveConfig struct {
	Enabled   bool     `toml:"enabled"`
	Interval  duration `toml:"interval"`
	Retention duration `toml:"retention"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds the status API parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
	// AuthToken, when set, is required as a bearer token on /api routes.
	AuthToken string `toml:"auth_token"`
	// RateLimit caps requests per client per minute. It needs Redis; zero
	// disables it.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with default values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Quote:          "BTC",
			TargetProfit:   decimal.RequireFromString("1.005"),
			BaseTradePct:   decimal.NewFromInt(1),
			QuoteTradePct:  decimal.NewFromInt(1),
			Cooldown:       duration{30 * time.Second},
			ScanPause:      duration{100 * time.Millisecond},
			BalanceRefresh: duration{time.Minute},
			LockTTL:        duration{time.Minute},
			DedupWindow:    duration{10 * time.Second},
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    20,
			MaxRetries:  3,
			MirrorBooks: true,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "venuearb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "venuearb-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Interval:  duration{24 * time.Hour},
			Retention: duration{30 * 24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Notify: NotifyConfig{
			Events: []string{"partial", "failed"},
		},
		Mode:     ModeMonitor,
		LogLevel: "info",
	}
}

// applyVenueDefaults fills per-venue defaults that depend on the kind.
func applyVenueDefaults(v *VenueConfig) {
	if v.Kind == "" {
		v.Kind = KindBinance
	}
	if v.Fee.IsZero() {
		v.Fee = decimal.RequireFromString("0.999")
	}
	if v.Kind == KindBinance || v.PaperMarketData {
		if v.RESTURL == "" {
			v.RESTURL = "https://api.binance.com"
		}
		if v.WSURL == "" {
			v.WSURL = "wss://stream.binance.com:9443"
		}
	}
	if v.RateLimit > 0 && v.RateWindow.Duration <= 0 {
		v.RateWindow = duration{time.Minute}
	}
}

// ParsePairKey parses a "BASE-QUOTE" or "BASE/QUOTE" rule key.
func ParsePairKey(key string) (domain.Pair, error) {
	base, quote, ok := strings.Cut(key, "-")
	if !ok {
		base, quote, ok = strings.Cut(key, "/")
	}
	if !ok || strings.TrimSpace(base) == "" || strings.TrimSpace(quote) == "" {
		return domain.Pair{}, fmt.Errorf("invalid pair %q (want BASE-QUOTE)", key)
	}
	return domain.NewPair(base, quote), nil
}

var validModes = map[string]bool{
	ModeLive:    true,
	ModePaper:   true,
	ModeMonitor: true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a combined
// error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, paper, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if strings.TrimSpace(c.Engine.Quote) == "" {
		errs = append(errs, "engine: quote must not be empty")
	}
	if len(c.Engine.Bases) == 0 {
		errs = append(errs, "engine: at least one base asset is required")
	}
	if !c.Engine.TargetProfit.IsPositive() {
		errs = append(errs, "engine: target_profit must be > 0")
	}
	if !c.Engine.BaseTradePct.IsPositive() || !c.Engine.QuoteTradePct.IsPositive() {
		errs = append(errs, "engine: base_trade_pct and quote_trade_pct must be > 0")
	}
	if c.Engine.Cooldown.Duration < 0 || c.Engine.ScanPause.Duration < 0 {
		errs = append(errs, "engine: cooldown and scan_pause must not be negative")
	}

	// Venues
	if len(c.Venues) < 2 {
		errs = append(errs, fmt.Sprintf("venues: at least two venues are required, got %d", len(c.Venues)))
	}
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		errs = append(errs, c.validateVenue(i, v, seen)...)
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3 and archive
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}
	if c.Archive.Enabled {
		if !c.S3.Enabled || !c.Postgres.Enabled {
			errs = append(errs, "archive: requires s3.enabled and postgres.enabled")
		}
		if c.Archive.Interval.Duration <= 0 || c.Archive.Retention.Duration <= 0 {
			errs = append(errs, "archive: interval and retention must be > 0")
		}
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.Enabled && c.Server.RateLimit > 0 && !c.Redis.Enabled {
		errs = append(errs, "server: rate_limit requires redis to be enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validateVenue(i int, v VenueConfig, seen map[string]bool) []string {
	var errs []string
	label := fmt.Sprintf("venues[%d]", i)
	if v.Name == "" {
		errs = append(errs, label+": name must not be empty")
	} else {
		label = fmt.Sprintf("venues[%s]", v.Name)
		if seen[v.Name] {
			errs = append(errs, label+": duplicate name")
		}
		seen[v.Name] = true
	}

	switch v.Kind {
	case KindBinance:
		if c.Mode == ModePaper {
			errs = append(errs, label+": mode paper only runs paper venues")
		}
		if c.Mode == ModeLive && v.APIKey == "" {
			errs = append(errs, label+": api_key is required in live mode")
		}
		if c.Mode == ModeLive && v.APISecret == "" && v.SecretFile == "" {
			errs = append(errs, label+": api_secret or secret_file is required in live mode")
		}
		if v.SecretFile != "" && v.SecretPassword == "" {
			errs = append(errs, label+": secret_password is required when secret_file is set")
		}
	case KindPaper:
		if c.Mode == ModeLive {
			errs = append(errs, label+": paper venues cannot run in live mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("%s: unknown kind %q (valid: binance, paper)", label, v.Kind))
	}

	if !v.Fee.IsPositive() || v.Fee.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, label+": fee must be in (0, 1]")
	}
	for key := range v.Rules {
		if _, err := ParsePairKey(key); err != nil {
			errs = append(errs, fmt.Sprintf("%s: rules: %v", label, err))
		}
	}
	return errs
}
