// Package config defines the top-level configuration of the market core
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETCORE_* environment variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Resolution ResolutionConfig `toml:"resolution"`
	Oracle     OracleConfig     `toml:"oracle"`
	Pricing    PricingConfig    `toml:"pricing"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters. With Enabled
// false the process keeps state in memory, which only suits local runs.
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	Namespace    string   `toml:"namespace"`
	PriceTTL     duration `toml:"price_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for the evidence
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	PartSizeMB     int64  `toml:"part_size_mb"`
}

// ResolutionConfig holds the resolution, quorum and dispute-window tunables.
type ResolutionConfig struct {
	DisputePeriod       duration `toml:"dispute_period"`
	HighVolumeThreshold string   `toml:"high_volume_threshold"`
	Quorum              int      `toml:"quorum"`
	LockTTL             duration `toml:"lock_ttl"`
	HoldWhileDisputed   bool     `toml:"hold_while_disputed"`
	FinalizeInterval    duration `toml:"finalize_interval"`
	ChainID             int64    `toml:"chain_id"`
	Admins              []string `toml:"admins"`
}

// OracleConfig holds the registered oracle identities and how their
// signatures are checked.
type OracleConfig struct {
	Addresses       []string `toml:"addresses"`
	VerifyTimeout   duration `toml:"verify_timeout"`
	AllowUnverified bool     `toml:"allow_unverified"`
}

// PricingConfig holds fee and payout parameters.
type PricingConfig struct {
	FeeBps    int64  `toml:"fee_bps"`
	UnitValue string `toml:"unit_value"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "72h").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	AuthSecret  string   `toml:"auth_secret"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	TrustProxy  bool     `toml:"trust_proxy"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "marketcore",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			PriceTTL:     duration{10 * time.Minute},
			StreamMaxLen: 100_000,
		},
		S3: S3Config{
			Enabled:        true,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketcore-evidence",
			ForcePathStyle: true,
			PartSizeMB:     5,
		},
		Resolution: ResolutionConfig{
			DisputePeriod:       duration{72 * time.Hour},
			HighVolumeThreshold: "100000000",
			Quorum:              2,
			LockTTL:             duration{30 * time.Second},
			FinalizeInterval:    duration{time.Minute},
			ChainID:             137,
		},
		Oracle: OracleConfig{
			VerifyTimeout: duration{5 * time.Second},
		},
		Pricing: PricingConfig{
			FeeBps:    100,
			UnitValue: "1",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"option_resolved", "market_resolved", "dispute_raised", "market_finalized"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":    true,
	"finalizer": true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validEvents enumerates the event names notify.events may list.
var validEvents = map[string]bool{
	"price_updated":       true,
	"option_resolved":     true,
	"market_resolved":     true,
	"dispute_raised":      true,
	"option_finalized":    true,
	"market_finalized":    true,
	"position_claimed":    true,
	"liquidity_withdrawn": true,
}

// minAuthSecretLen matches the token issuer's minimum key length.
const minAuthSecretLen = 16

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, finalizer, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
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
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	} else if strings.ToLower(c.Mode) != "server" && strings.ToLower(c.Mode) != "full" {
		errs = append(errs, "postgres: the in-memory store is only usable in server or full mode")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.PriceTTL.Duration <= 0 {
		errs = append(errs, "redis: price_ttl must be > 0")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.PartSizeMB < 5 {
			errs = append(errs, "s3: part_size_mb must be >= 5")
		}
	}

	// Resolution
	if c.Resolution.DisputePeriod.Duration < 0 {
		errs = append(errs, "resolution: dispute_period must not be negative")
	}
	if d, err := decimal.NewFromString(c.Resolution.HighVolumeThreshold); err != nil || d.IsNegative() {
		errs = append(errs, fmt.Sprintf("resolution: high_volume_threshold must be a non-negative decimal, got %q", c.Resolution.HighVolumeThreshold))
	}
	if c.Resolution.Quorum < 1 {
		errs = append(errs, "resolution: quorum must be >= 1")
	}
	if c.Resolution.LockTTL.Duration <= 0 {
		errs = append(errs, "resolution: lock_ttl must be > 0")
	}
	if c.Resolution.FinalizeInterval.Duration <= 0 {
		errs = append(errs, "resolution: finalize_interval must be > 0")
	}
	if c.Resolution.ChainID <= 0 {
		errs = append(errs, "resolution: chain_id must be positive")
	}
	if len(c.Resolution.Admins) > 0 && len(c.Resolution.Admins) < c.Resolution.Quorum {
		errs = append(errs, fmt.Sprintf("resolution: quorum %d exceeds the %d configured admins", c.Resolution.Quorum, len(c.Resolution.Admins)))
	}
	errs = append(errs, checkAddresses("resolution: admins", c.Resolution.Admins)...)

	// Oracle
	errs = append(errs, checkAddresses("oracle: addresses", c.Oracle.Addresses)...)
	if c.Oracle.VerifyTimeout.Duration <= 0 {
		errs = append(errs, "oracle: verify_timeout must be > 0")
	}

	// Pricing
	if c.Pricing.FeeBps < 0 || c.Pricing.FeeBps > 10_000 {
		errs = append(errs, fmt.Sprintf("pricing: fee_bps must be 0-10000, got %d", c.Pricing.FeeBps))
	}
	if d, err := decimal.NewFromString(c.Pricing.UnitValue); err != nil || !d.IsPositive() {
		errs = append(errs, fmt.Sprintf("pricing: unit_value must be a positive decimal, got %q", c.Pricing.UnitValue))
	}

	// Server
	if c.Server.Enabled && strings.ToLower(c.Mode) != "finalizer" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if len(c.Server.AuthSecret) < minAuthSecretLen {
			errs = append(errs, fmt.Sprintf("server: auth_secret must be at least %d characters", minAuthSecretLen))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, ev := range c.Notify.Events {
		if !validEvents[ev] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", ev))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// HighVolumeThresholdDecimal returns the parsed quorum threshold. Call
// after Validate.
func (r ResolutionConfig) HighVolumeThresholdDecimal() decimal.Decimal {
	return decimal.RequireFromString(r.HighVolumeThreshold)
}

// UnitValueDecimal returns the parsed payout per winning share. Call after
// Validate.
func (p PricingConfig) UnitValueDecimal() decimal.Decimal {
	return decimal.RequireFromString(p.UnitValue)
}
