// Package config loads and saves the YAML configuration file.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig selects the Record Store backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `yaml:"dsn"`
}

// KafkaConfig enables the change-notification publisher when Brokers is set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen"`

	Database DatabaseConfig `yaml:"database"`

	// MeetingsURL returns the meeting listing JSON ({"objects": [...]}).
	MeetingsURL string `yaml:"meetings_url"`

	// AgendaURLTemplate, SessionURLTemplate and DraftFeedURLTemplate take a
	// single %s verb (meeting number, session id, draft name).
	AgendaURLTemplate    string `yaml:"agenda_url_template"`
	SessionURLTemplate   string `yaml:"session_url_template"`
	DraftFeedURLTemplate string `yaml:"draft_feed_url_template"`

	// Schedule is a cron spec for background syncs. Empty disables the poller.
	Schedule string `yaml:"schedule"`

	HTTPTimeout      time.Duration `yaml:"http_timeout"`
	ProbeConcurrency int           `yaml:"probe_concurrency"`
	LogLevel         string        `yaml:"log_level"`

	Kafka KafkaConfig `yaml:"kafka"`
}

const (
	defaultListen           = "127.0.0.1:8080"
	defaultDSN              = "confsync.db"
	defaultMeetingsURL      = "https://datatracker.ietf.org/api/v1/meeting/meeting/?format=json&type=ietf&limit=6&order_by=-date"
	defaultAgendaURL        = "https://datatracker.ietf.org/meeting/%s/agenda.json"
	defaultSessionURL       = "https://datatracker.ietf.org/api/v1/meeting/session/%s/?format=json"
	defaultDraftFeedURL     = "https://datatracker.ietf.org/feed/document-changes/%s/"
	defaultSchedule         = "*/30 * * * *"
	defaultHTTPTimeout      = 20 * time.Second
	defaultProbeConcurrency = 4
	defaultKafkaTopic       = "confsync.blocks"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{Schedule: defaultSchedule}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values so partially-filled files still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = defaultDSN
	}
	if c.MeetingsURL == "" {
		c.MeetingsURL = defaultMeetingsURL
	}
	if c.AgendaURLTemplate == "" {
		c.AgendaURLTemplate = defaultAgendaURL
	}
	if c.SessionURLTemplate == "" {
		c.SessionURLTemplate = defaultSessionURL
	}
	if c.DraftFeedURLTemplate == "" {
		c.DraftFeedURLTemplate = defaultDraftFeedURL
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.ProbeConcurrency <= 0 {
		c.ProbeConcurrency = defaultProbeConcurrency
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		c.Kafka.Topic = defaultKafkaTopic
	}
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv() {
	c.Listen = envOrDefault("CONFSYNC_LISTEN", c.Listen)
	c.Database.DSN = envOrDefault("CONFSYNC_DB_DSN", c.Database.DSN)
	if brokers := os.Getenv("CONFSYNC_KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
		c.Normalize()
	}
}

// SlogLevel maps LogLevel to a slog.Level.
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

// Load reads configuration from path. A missing file is created with defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename, 0600).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".confsync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
