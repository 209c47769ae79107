package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the portal API.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	JWTSecret           string
	EventChannel        string
	ProgressCacheTTL    time.Duration
	CPDTargetPoints     decimal.Decimal
	CPDMaxPoints        decimal.Decimal
	LedgerRetryAttempts int
	BulkApproveLimit    int
	SubmitRateLimit     int
	SubmitRateWindow    time.Duration
	OfflineOrigin       string
	OfflineVersion      string
	OfflineDocument     string
	OfflinePrecache     []string
}

// CPDPolicy is the accrual configuration handed to the CPD services at construction.
type CPDPolicy struct {
	DefaultTargetPoints decimal.Decimal
	MaxPointsPerRecord  decimal.Decimal
	RetryAttempts       int
	BulkLimit           int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CPDPolicy extracts the accrual settings.
func (c Config) CPDPolicy() CPDPolicy {
	return CPDPolicy{
		DefaultTargetPoints: c.CPDTargetPoints,
		MaxPointsPerRecord:  c.CPDMaxPoints,
		RetryAttempts:       c.LedgerRetryAttempts,
		BulkLimit:           c.BulkApproveLimit,
	}
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("NAA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "NAA Portal API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("events.channel", "naa:cpd")
	v.SetDefault("progress.cache_ttl", "5m")
	v.SetDefault("cpd.target_points", "30")
	v.SetDefault("cpd.max_points_per_activity", "50")
	v.SetDefault("ledger.retry_attempts", 3)
	v.SetDefault("cpd.bulk_limit", 200)
	v.SetDefault("submit.rate_limit", 10)
	v.SetDefault("submit.rate_window", "1m")
	v.SetDefault("offline.origin", "http://localhost:8080")
	v.SetDefault("offline.version", "v1")
	v.SetDefault("offline.document", "/offline/")
	v.SetDefault("offline.precache", "/static/css/site.css,/static/js/app.js,/static/img/logo.png")

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	ttl, err := parseDuration(v.GetString("progress.cache_ttl"), 5*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid progress cache ttl: %w", err)
	}

	window, err := parseDuration(v.GetString("submit.rate_window"), time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid submit rate window: %w", err)
	}

	target, err := decimal.NewFromString(strings.TrimSpace(v.GetString("cpd.target_points")))
	if err != nil {
		return Config{}, fmt.Errorf("invalid cpd target points: %w", err)
	}
	if !target.IsPositive() {
		return Config{}, fmt.Errorf("cpd target points must be positive")
	}

	maxPoints, err := decimal.NewFromString(strings.TrimSpace(v.GetString("cpd.max_points_per_activity")))
	if err != nil {
		return Config{}, fmt.Errorf("invalid cpd max points: %w", err)
	}
	if !maxPoints.IsPositive() {
		return Config{}, fmt.Errorf("cpd max points must be positive")
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		EventChannel:        v.GetString("events.channel"),
		ProgressCacheTTL:    ttl,
		CPDTargetPoints:     target,
		CPDMaxPoints:        maxPoints,
		LedgerRetryAttempts: v.GetInt("ledger.retry_attempts"),
		BulkApproveLimit:    v.GetInt("cpd.bulk_limit"),
		SubmitRateLimit:     v.GetInt("submit.rate_limit"),
		SubmitRateWindow:    window,
		OfflineOrigin:       v.GetString("offline.origin"),
		OfflineVersion:      v.GetString("offline.version"),
		OfflineDocument:     v.GetString("offline.document"),
		OfflinePrecache:     splitList(v.GetString("offline.precache")),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.LedgerRetryAttempts <= 0 {
		cfg.LedgerRetryAttempts = 3
	}

	if cfg.BulkApproveLimit <= 0 {
		cfg.BulkApproveLimit = 200
	}

	return cfg, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

func splitList(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
