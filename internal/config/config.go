package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AlexYaroshenko/hades/internal/store"
)

type TelegramConfig struct {
	Token       string        `yaml:"token"`
	APIURL      string        `yaml:"api_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"` // 0 = poll timeout + 10s
}

type PollConfig struct {
	Mode       string `yaml:"mode"`    // poll|once|webhook
	Limit      int    `yaml:"limit"`   // 1..100
	Timeout    int    `yaml:"timeout"` // long-poll seconds
	Advance    string `yaml:"advance"` // count|update_id
	SkipFailed bool   `yaml:"skip_failed"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type OffsetConfig struct {
	Backend string `yaml:"backend"` // kv|postgres
	Key     string `yaml:"key"`
	Table   string `yaml:"table"`
	Column  string `yaml:"column"`
}

type KVConfig struct {
	Driver      string `yaml:"driver"` // redis|bolt|none
	RedisURL    string `yaml:"redis_url"`
	Password    string `yaml:"redis_password"`
	DB          int    `yaml:"redis_db"`
	BoltPath    string `yaml:"bolt_path"`
	TablePrefix string `yaml:"table_prefix"`
}

type HTTPConfig struct {
	Addr          string `yaml:"addr"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
	Release     string `yaml:"release"`
}

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Poll     PollConfig     `yaml:"poll"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Offset   OffsetConfig   `yaml:"offset"`
	KV       KVConfig       `yaml:"kv"`
	HTTP     HTTPConfig     `yaml:"http"`
	Sentry   SentryConfig   `yaml:"sentry"`
}

// Default returns the configuration used for anything not set elsewhere.
func Default() Config {
	return Config{
		Poll: PollConfig{
			Mode:       "poll",
			Limit:      100,
			Timeout:    30,
			Advance:    "count",
			SkipFailed: true,
		},
		Log:    LogConfig{Level: "info", Format: "json"},
		Offset: OffsetConfig{Backend: "kv", Key: store.DefaultOffsetKey, Table: "telegram", Column: "bot_offset"},
		KV:     KVConfig{Driver: "none"},
		HTTP:   HTTPConfig{Addr: ":8080"},
		Sentry: SentryConfig{Environment: "production"},
	}
}

// Load builds the config from defaults, the YAML file at path (skipped
// when path is empty), .env and the process environment, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Telegram.HTTPTimeout <= 0 {
		cfg.Telegram.HTTPTimeout = time.Duration(cfg.Poll.Timeout)*time.Second + 10*time.Second
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	str(&c.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	str(&c.Telegram.APIURL, "TELEGRAM_API_URL")
	str(&c.Poll.Mode, "BOT_MODE")
	str(&c.Poll.Advance, "OFFSET_ADVANCE")
	str(&c.Log.Level, "LOG_LEVEL")
	str(&c.Log.Format, "LOG_FORMAT")
	str(&c.Database.URL, "DATABASE_URL")
	str(&c.Offset.Backend, "OFFSET_BACKEND")
	str(&c.Offset.Key, "OFFSET_KEY")
	str(&c.Offset.Table, "OFFSET_TABLE")
	str(&c.Offset.Column, "OFFSET_COLUMN")
	str(&c.KV.Driver, "KV_DRIVER")
	str(&c.KV.RedisURL, "REDIS_URL")
	str(&c.KV.Password, "REDIS_PASSWORD")
	str(&c.KV.BoltPath, "BOLT_PATH")
	str(&c.KV.TablePrefix, "DB_TABLE_PREFIX")
	str(&c.HTTP.WebhookSecret, "WEBHOOK_SECRET")
	str(&c.Sentry.DSN, "SENTRY_DSN")
	str(&c.Sentry.Environment, "SENTRY_ENVIRONMENT")
	str(&c.Sentry.Release, "SENTRY_RELEASE")

	if port, ok := os.LookupEnv("PORT"); ok && port != "" {
		c.HTTP.Addr = ":" + port
	}
	str(&c.HTTP.Addr, "HTTP_ADDR")

	return errors.Join(
		num(&c.Poll.Limit, "POLL_LIMIT"),
		num(&c.Poll.Timeout, "POLL_TIMEOUT"),
		num(&c.KV.DB, "REDIS_DB"),
		flag(&c.Poll.SkipFailed, "SKIP_FAILED"),
		dur(&c.Telegram.HTTPTimeout, "TELEGRAM_HTTP_TIMEOUT"),
	)
}

// Validate checks the combination of settings the binary is about to use.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token (TELEGRAM_BOT_TOKEN) is required"))
	}
	switch c.Poll.Mode {
	case "poll", "once", "webhook":
	default:
		errs = append(errs, fmt.Errorf("poll.mode: unknown mode %q", c.Poll.Mode))
	}
	if c.Poll.Limit < 1 || c.Poll.Limit > 100 {
		errs = append(errs, fmt.Errorf("poll.limit must be in 1..100, got %d", c.Poll.Limit))
	}
	if c.Poll.Timeout < 0 {
		errs = append(errs, fmt.Errorf("poll.timeout must not be negative, got %d", c.Poll.Timeout))
	}
	if c.Poll.Advance != "count" && c.Poll.Advance != "update_id" {
		errs = append(errs, fmt.Errorf("poll.advance: unknown mode %q", c.Poll.Advance))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	switch c.KV.Driver {
	case "none":
	case "redis":
		if c.KV.RedisURL == "" {
			errs = append(errs, errors.New("kv.redis_url (REDIS_URL) is required for the redis driver"))
		}
	case "bolt":
		if c.KV.BoltPath == "" {
			errs = append(errs, errors.New("kv.bolt_path (BOLT_PATH) is required for the bolt driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("kv.driver: unknown driver %q", c.KV.Driver))
	}

	switch c.Offset.Backend {
	case "kv":
		if c.Poll.Mode == "once" && c.KV.Driver == "none" {
			errs = append(errs, errors.New("offset.backend kv needs a kv driver in once mode"))
		}
	case "postgres":
		if c.Poll.Mode == "once" && c.Database.URL == "" {
			errs = append(errs, errors.New("offset.backend postgres needs database.url (DATABASE_URL)"))
		}
	default:
		errs = append(errs, fmt.Errorf("offset.backend: unknown backend %q", c.Offset.Backend))
	}
	if _, err := c.OffsetLocation(); err != nil {
		errs = append(errs, err)
	}

	if c.Poll.Mode == "webhook" && c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required in webhook mode"))
	}
	return errors.Join(errs...)
}

// OffsetLocation returns the validated offset table and column.
func (c *Config) OffsetLocation() (store.OffsetLocation, error) {
	table, err := store.ParseIdentifier(c.Offset.Table)
	if err != nil {
		return store.OffsetLocation{}, fmt.Errorf("offset.table: %w", err)
	}
	column, err := store.ParseIdentifier(c.Offset.Column)
	if err != nil {
		return store.OffsetLocation{}, fmt.Errorf("offset.column: %w", err)
	}
	return store.OffsetLocation{Table: table, Column: column}, nil
}

func str(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func num(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func flag(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func dur(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
