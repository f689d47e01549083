// Package config holds the bridge configuration.
//
// Values are resolved in order: defaults, then an optional YAML file, then
// environment variables prefixed with BLENDERMCP_ (for example
// BLENDERMCP_HOST_ADDR or BLENDERMCP_CSM_API_KEY).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// Config is the complete bridge configuration.
type Config struct {
	Bridge  BridgeConfig  `yaml:"bridge" env:"BRIDGE"`
	Host    HostConfig    `yaml:"host" env:"HOST"`
	CSM     CSMConfig     `yaml:"csm" env:"CSM"`
	Log     LogConfig     `yaml:"log" env:"LOG"`
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// BridgeConfig controls the local coordination endpoint shared by bridge processes.
type BridgeConfig struct {
	// Addr is bound by the leader and pinged by followers.
	Addr string `yaml:"addr" env:"ADDR"`
	// CommandTimeout bounds one command end to end. Zero waits indefinitely.
	CommandTimeout time.Duration `yaml:"command_timeout" env:"COMMAND_TIMEOUT"`
	// ElectionInterval is the base period of leader health checks; up to 2s jitter is added.
	ElectionInterval time.Duration `yaml:"election_interval" env:"ELECTION_INTERVAL"`
	PingTimeout      time.Duration `yaml:"ping_timeout" env:"PING_TIMEOUT"`
	QueueSize        int           `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// HostConfig selects how the bridge reaches the host application.
type HostConfig struct {
	// Transport is "tcp" (dial the addon socket) or "websocket" (the host dials /ws).
	Transport   string        `yaml:"transport" env:"TRANSPORT"`
	Addr        string        `yaml:"addr" env:"ADDR"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

// CSMConfig configures the asset service client.
type CSMConfig struct {
	// AlwaysEnabled skips the host's enable toggle.
	AlwaysEnabled bool `yaml:"always_enabled" env:"ALWAYS_ENABLED"`
	// APIKey, when empty, is read from the host settings.
	APIKey           string        `yaml:"api_key" env:"API_KEY"`
	BaseURL          string        `yaml:"base_url" env:"BASE_URL"`
	AnimationURL     string        `yaml:"animation_url" env:"ANIMATION_URL"`
	Platform         string        `yaml:"platform" env:"PLATFORM"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RateLimit        float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	Burst            int           `yaml:"burst" env:"BURST"`
	UsePrivateAssets bool          `yaml:"use_private_assets" env:"USE_PRIVATE_ASSETS"`
	DefaultTier      string        `yaml:"default_tier" env:"DEFAULT_TIER"`
}

type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is console or json.
	Format string `yaml:"format" env:"FORMAT"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// Tiers accepted by the asset service search filter.
var Tiers = []string{"free", "pro", "enterprise"}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Addr:             "127.0.0.1:9877",
			CommandTimeout:   5 * time.Minute,
			ElectionInterval: 3 * time.Second,
			PingTimeout:      2 * time.Second,
			QueueSize:        64,
		},
		Host: HostConfig{
			Transport:   TransportTCP,
			Addr:        "localhost:9876",
			DialTimeout: 5 * time.Second,
		},
		CSM: CSMConfig{
			BaseURL:          "https://api.csm.ai",
			AnimationURL:     "https://animation.csm.ai/animate",
			Platform:         "web",
			Timeout:          60 * time.Second,
			RateLimit:        2,
			Burst:            4,
			UsePrivateAssets: true,
			DefaultTier:      "free",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LeaderURL is the base URL followers use to reach the leader.
func (c *Config) LeaderURL() string {
	return "http://" + c.Bridge.Addr
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Bridge.Addr == "" {
		errs = append(errs, errors.New("bridge.addr is required"))
	}
	if c.Bridge.CommandTimeout < 0 {
		errs = append(errs, errors.New("bridge.command_timeout must not be negative"))
	}
	if c.Bridge.ElectionInterval <= 0 {
		errs = append(errs, errors.New("bridge.election_interval must be positive"))
	}
	if c.Bridge.QueueSize <= 0 {
		errs = append(errs, errors.New("bridge.queue_size must be positive"))
	}

	switch c.Host.Transport {
	case TransportTCP:
		if c.Host.Addr == "" {
			errs = append(errs, errors.New("host.addr is required for tcp transport"))
		}
	case TransportWebSocket:
	default:
		errs = append(errs, fmt.Errorf("host.transport %q must be tcp or websocket", c.Host.Transport))
	}

	if c.CSM.BaseURL == "" {
		errs = append(errs, errors.New("csm.base_url is required"))
	}
	if c.CSM.RateLimit <= 0 {
		errs = append(errs, errors.New("csm.rate_limit must be positive"))
	}
	if c.CSM.Burst <= 0 {
		errs = append(errs, errors.New("csm.burst must be positive"))
	}
	if !validTier(c.CSM.DefaultTier) {
		errs = append(errs, fmt.Errorf("csm.default_tier %q must be one of %s", c.CSM.DefaultTier, strings.Join(Tiers, ", ")))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

func validTier(t string) bool {
	for _, v := range Tiers {
		if v == t {
			return true
		}
	}
	return false
}
