package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keeps runtime settings for the reminder engine.
type Config struct {
	AppPort     string `mapstructure:"APP_PORT"`
	Env         string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Sweeper schedule: "HH:MM", a duration, or a cron spec.
	SweepSpec      string        `mapstructure:"SWEEP_SPEC"`
	SweepTimeout   time.Duration `mapstructure:"SWEEP_TIMEOUT"`
	Timezone       string        `mapstructure:"TIMEZONE"`
	DefaultRole    string        `mapstructure:"DEFAULT_ROLE"`
	CronRatePerMin int           `mapstructure:"CRON_RATE_PER_MIN"`

	// Trigger cache backend: memory or redis.
	TriggerCache  string `mapstructure:"TRIGGER_CACHE"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`

	// Optional; enables delivery to Telegram.
	TelegramToken string `mapstructure:"TELEGRAM_TOKEN"`
}

var keys = map[string]interface{}{
	"APP_PORT":          "8080",
	"ENV":               "development",
	"LOG_LEVEL":         "info",
	"DATABASE_URL":      "reminders.db",
	"SWEEP_SPEC":        "@every 1h",
	"SWEEP_TIMEOUT":     "5m",
	"TIMEZONE":          "UTC",
	"DEFAULT_ROLE":      "ADMIN",
	"CRON_RATE_PER_MIN": 6,
	"TRIGGER_CACHE":     "memory",
	"REDIS_ADDR":        "localhost:6379",
	"REDIS_PASSWORD":    "",
	"REDIS_CACHE_DB":    0,
	"TELEGRAM_TOKEN":    "",
}

// Load reads configuration from the environment, layered over an optional
// config file. An empty path looks for config.yaml in . and ./config.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.AutomaticEnv()
	for key, def := range keys {
		v.SetDefault(key, def)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.TriggerCache = strings.ToLower(strings.TrimSpace(cfg.TriggerCache))
	cfg.DefaultRole = strings.ToUpper(strings.TrimSpace(cfg.DefaultRole))
	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.SweepSpec == "" {
		return fmt.Errorf("SWEEP_SPEC is required")
	}
	if c.TriggerCache != "memory" && c.TriggerCache != "redis" {
		return fmt.Errorf("TRIGGER_CACHE must be memory or redis, got %q", c.TriggerCache)
	}
	if c.CronRatePerMin <= 0 {
		return fmt.Errorf("CRON_RATE_PER_MIN must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	return nil
}

// Location resolves Timezone. Load has already validated it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}
