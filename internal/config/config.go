package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trade-sonic/quote-stream/internal/feed"
	"github.com/trade-sonic/quote-stream/internal/session"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the configuration for the streamer
type Config struct {
	Feed      FeedConfig      `yaml:"feed"`
	Session   SessionConfig   `yaml:"session"`
	Transport TransportConfig `yaml:"transport"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Output    OutputConfig    `yaml:"output"`
	NATS      NATSConfig      `yaml:"nats"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Status    StatusConfig    `yaml:"status"`
	Log       LogConfig       `yaml:"log"`
}

type FeedConfig struct {
	URL          string   `yaml:"url"`
	Targets      []string `yaml:"targets"`
	TopicPrefix  string   `yaml:"topic_prefix"`
	SecretLength int      `yaml:"secret_length"`

	// The secret is taken from Secret, then TokenServiceURL, then SecretEnv.
	Secret          string `yaml:"secret"`
	SecretEnv       string `yaml:"secret_env"`
	TokenServiceURL string `yaml:"token_service_url"`
	AccountType     string `yaml:"account_type"`
}

type SessionConfig struct {
	MaxIdleCycles    int           `yaml:"max_idle_cycles"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	QueueSize        int           `yaml:"queue_size"` // 0 means unbounded
}

type TransportConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
}

type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	MaxAttempts  int           `yaml:"max_attempts"` // 0 means unlimited
}

type OutputConfig struct {
	Format string `yaml:"format"` // raw or pretty
}

type NATSConfig struct {
	URL     string `yaml:"url"` // empty disables the relay
	Subject string `yaml:"subject"`
}

type AlertsConfig struct {
	MaxDrawdownPercent float64 `yaml:"max_drawdown_percent"` // 0 disables drawdown alerts
}

type StatusConfig struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			URL:          "wss://socket.polygon.io/stocks",
			TopicPrefix:  feed.DefaultTopicPrefix,
			SecretLength: feed.DefaultSecretLength,
			SecretEnv:    "POLYGON_API_KEY",
			AccountType:  "polygon",
		},
		Session: SessionConfig{
			MaxIdleCycles:    session.DefaultMaxIdleCycles,
			HandshakeTimeout: 10 * time.Second,
			QueueSize:        1024,
		},
		Transport: TransportConfig{
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     10 * time.Second,
			PingInterval:     30 * time.Second,
		},
		Reconnect: ReconnectConfig{
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
		},
		Output: OutputConfig{Format: "raw"},
		NATS:   NATSConfig{Subject: "quotes"},
		Status: StatusConfig{Addr: ":8081"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise only fail once connected.
func (c *Config) Validate() error {
	switch {
	case c.Feed.URL == "":
		return fmt.Errorf("%w: feed.url is required", ErrInvalidConfig)
	case c.Feed.SecretLength <= 0:
		return fmt.Errorf("%w: feed.secret_length must be positive", ErrInvalidConfig)
	case c.Feed.Secret == "" && c.Feed.SecretEnv == "" && c.Feed.TokenServiceURL == "":
		return fmt.Errorf("%w: one of feed.secret, feed.secret_env or feed.token_service_url is required", ErrInvalidConfig)
	case c.Session.MaxIdleCycles < 0:
		return fmt.Errorf("%w: session.max_idle_cycles must not be negative", ErrInvalidConfig)
	case c.Session.QueueSize < 0:
		return fmt.Errorf("%w: session.queue_size must not be negative", ErrInvalidConfig)
	case c.Reconnect.InitialDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.InitialDelay:
		return fmt.Errorf("%w: reconnect delays must satisfy 0 < initial_delay <= max_delay", ErrInvalidConfig)
	case c.Reconnect.MaxAttempts < 0:
		return fmt.Errorf("%w: reconnect.max_attempts must not be negative", ErrInvalidConfig)
	case c.NATS.URL != "" && c.NATS.Subject == "":
		return fmt.Errorf("%w: nats.subject is required when nats.url is set", ErrInvalidConfig)
	case c.Alerts.MaxDrawdownPercent < 0 || c.Alerts.MaxDrawdownPercent >= 100:
		return fmt.Errorf("%w: alerts.max_drawdown_percent must be in [0, 100)", ErrInvalidConfig)
	}
	return nil
}

// Protocol returns the request constants for the configured feed.
func (c *Config) Protocol() feed.Protocol {
	return feed.Protocol{
		SecretLength: c.Feed.SecretLength,
		TopicPrefix:  c.Feed.TopicPrefix,
	}
}
