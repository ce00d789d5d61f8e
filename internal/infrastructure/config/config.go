package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// FileEnv names the environment variable pointing at an optional config file.
const FileEnv = "PIXMESH_CONFIG"

// Transport names.
const (
	TransportLocal = "local"
	TransportGRPC  = "grpc"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config holds all application configuration.
type Config struct {
	Cluster   ClusterConfig   `yaml:"cluster" toml:"cluster"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ClusterConfig describes the worker group this process belongs to.
type ClusterConfig struct {
	Workers     int      `envconfig:"PIXMESH_WORKERS" yaml:"workers" toml:"workers"`
	Rank        int      `envconfig:"PIXMESH_RANK" yaml:"rank" toml:"rank"`
	Transport   string   `envconfig:"PIXMESH_TRANSPORT" yaml:"transport" toml:"transport"`
	Coordinator string   `envconfig:"PIXMESH_COORDINATOR" yaml:"coordinator" toml:"coordinator"`
	JoinTimeout Duration `envconfig:"PIXMESH_JOIN_TIMEOUT" yaml:"join_timeout" toml:"join_timeout"`
}

// TransportConfig holds gRPC transport limits.
type TransportConfig struct {
	MaxMessageBytes int `envconfig:"PIXMESH_MAX_MESSAGE_BYTES" yaml:"max_message_bytes" toml:"max_message_bytes"`
	CompressAbove   int `envconfig:"PIXMESH_COMPRESS_ABOVE" yaml:"compress_above" toml:"compress_above"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// MetricsConfig holds the coordinator's metrics endpoint configuration.
type MetricsConfig struct {
	Enabled           bool   `envconfig:"METRICS_ENABLED" yaml:"enabled" toml:"enabled"`
	Address           string `envconfig:"METRICS_ADDR" yaml:"address" toml:"address"`
	RequestsPerSecond int    `envconfig:"METRICS_RPS" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int    `envconfig:"METRICS_BURST" yaml:"burst" toml:"burst"`
}

// Duration is a time.Duration read from strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Load builds the configuration from defaults, then the file named by
// PIXMESH_CONFIG if set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// MergeFile overlays the YAML or TOML file at path onto c. Keys missing from
// the file keep their current values.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("%w: unsupported config file type %q", ErrInvalid, ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	cl := c.Cluster
	if cl.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalid, cl.Workers)
	}
	switch cl.Transport {
	case TransportLocal:
	case TransportGRPC:
		if cl.Rank < 0 || cl.Rank >= cl.Workers {
			return fmt.Errorf("%w: rank %d outside [0, %d)", ErrInvalid, cl.Rank, cl.Workers)
		}
		if cl.Coordinator == "" {
			return fmt.Errorf("%w: grpc transport needs a coordinator address", ErrInvalid)
		}
		if cl.JoinTimeout.Duration <= 0 {
			return fmt.Errorf("%w: join timeout must be positive", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalid, cl.Transport)
	}
	if c.Transport.MaxMessageBytes <= 0 {
		return fmt.Errorf("%w: max message bytes must be positive", ErrInvalid)
	}
	if c.Transport.CompressAbove < 0 {
		return fmt.Errorf("%w: compress threshold must not be negative", ErrInvalid)
	}
	if c.Metrics.Enabled && (c.Metrics.RequestsPerSecond <= 0 || c.Metrics.Burst <= 0) {
		return fmt.Errorf("%w: metrics rate limit must be positive", ErrInvalid)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Cluster: ClusterConfig{
			Workers:     4,
			Rank:        0,
			Transport:   TransportLocal,
			Coordinator: "localhost:50061",
			JoinTimeout: Duration{30 * time.Second},
		},
		Transport: TransportConfig{
			MaxMessageBytes: 256 << 20,
			CompressAbove:   64 << 10,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Metrics: MetricsConfig{
			Enabled:           false,
			Address:           ":9090",
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}
