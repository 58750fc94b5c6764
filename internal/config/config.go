package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Core
	DatabaseURL string `env:"DATABASE_URL"`
	Port        int    `env:"PORT" envDefault:"3000"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Secrets
	IdentitySecret  string `env:"IDENTITY_SECRET,required,notEmpty"`
	JoinTokenSecret string `env:"JOIN_TOKEN_SECRET,required,notEmpty"`
	GiftTokenSecret string `env:"GIFT_TOKEN_SECRET,required,notEmpty"`

	// Matchmaking
	ExclusionWindow time.Duration `env:"EXCLUSION_WINDOW" envDefault:"5m"`
	WaitingTimeout  time.Duration `env:"WAITING_TIMEOUT" envDefault:"2m"`
	MatchMaxRetries int           `env:"MATCH_MAX_RETRIES" envDefault:"3"`

	// Billing
	RatePerMinute   decimal.Decimal `env:"RATE_PER_MINUTE" envDefault:"10"`
	BillingInterval time.Duration   `env:"BILLING_INTERVAL" envDefault:"30s"`

	// Gifts
	CommissionRate      decimal.Decimal `env:"COMMISSION_RATE" envDefault:"0.4"`
	GiftRequestTTL      time.Duration   `env:"GIFT_REQUEST_TTL" envDefault:"5m"`
	GiftDuplicateWindow time.Duration   `env:"GIFT_DUPLICATE_WINDOW" envDefault:"30s"`
	GiftAcceptLockTTL   time.Duration   `env:"GIFT_ACCEPT_LOCK_TTL" envDefault:"10s"`
	CatalogCacheTTL     time.Duration   `env:"CATALOG_CACHE_TTL" envDefault:"1m"`

	// Transport and notifications
	JoinTokenTTL  time.Duration `env:"JOIN_TOKEN_TTL" envDefault:"2m"`
	RedirectTTL   time.Duration `env:"REDIRECT_TTL" envDefault:"30s"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`

	// Rate limiting (requests per minute per user)
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`

	// Telegram ops log
	BotToken           string `env:"BOT_TOKEN"`
	LogTelegramChatID  int64  `env:"LOG_TELEGRAM_CHAT_ID"`
	LogTopicError      int    `env:"LOG_TOPIC_ERROR"`
	LogTopicSecurity   int    `env:"LOG_TOPIC_SECURITY"`
	LogTopicGift       int    `env:"LOG_TOPIC_GIFT"`
	LogTopicCredit     int    `env:"LOG_TOPIC_CREDIT"`
	LogTopicSettlement int    `env:"LOG_TOPIC_SETTLEMENT"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the billing and matching rules cannot work with.
func (c *Config) Validate() error {
	if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("COMMISSION_RATE must be within [0, 1], got %s", c.CommissionRate)
	}
	if !c.RatePerMinute.IsPositive() {
		return fmt.Errorf("RATE_PER_MINUTE must be positive, got %s", c.RatePerMinute)
	}
	if c.MatchMaxRetries < 1 {
		return fmt.Errorf("MATCH_MAX_RETRIES must be at least 1, got %d", c.MatchMaxRetries)
	}
	if c.ExclusionWindow <= 0 || c.WaitingTimeout <= 0 || c.GiftRequestTTL <= 0 {
		return fmt.Errorf("durations must be positive")
	}
	return nil
}

// UsesPostgres reports whether a database is configured. Without one the
// server runs on the in-memory store.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) TelegramLogEnabled() bool {
	return c.BotToken != "" && c.LogTelegramChatID != 0
}
