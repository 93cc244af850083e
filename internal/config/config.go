// ABOUTME: Configuration loading and parsing for courier
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable that overrides the config location.
const EnvPath = "COURIER_CONFIG"

// Config represents the complete courier configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Client   ClientConfig   `yaml:"client"`
	Auth     AuthConfig     `yaml:"auth"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Registry RegistryConfig `yaml:"registry"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds receiver listen addresses
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

// ClientConfig holds sender-side connection settings
type ClientConfig struct {
	Target string `yaml:"target"`
	// Token is the bearer token presented to an authenticated receiver
	Token string `yaml:"token"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// AuthConfig holds receiver-side sender authentication. An empty secret
// accepts anonymous senders.
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// DeliveryConfig holds retry policy settings
type DeliveryConfig struct {
	// MaxAttempts of 0 retries until delivered or cancelled
	MaxAttempts int `yaml:"max_attempts"`

	BackoffUnit time.Duration `yaml:"-"`
	MaxWait     time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	BackoffUnitRaw string `yaml:"backoff_unit"`
	MaxWaitRaw     string `yaml:"max_wait"`
}

// DedupConfig holds receiver dedup store settings
type DedupConfig struct {
	Capacity     int    `yaml:"capacity"`
	SnapshotPath string `yaml:"snapshot_path"`

	SnapshotInterval    time.Duration `yaml:"-"`
	SnapshotIntervalRaw string        `yaml:"snapshot_interval"`
}

// RegistryConfig lists extra TOML resources merged over the built-in codes
type RegistryConfig struct {
	Files []string `yaml:"files"`
}

// LedgerConfig holds the outcome ledger location. An empty path disables it.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	// Pushgateway receives sender metrics at the end of a send run
	Pushgateway string `yaml:"pushgateway"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			GRPCAddr: "127.0.0.1:50061",
			HTTPAddr: "127.0.0.1:9464",
		},
		Client: ClientConfig{
			Target:     "127.0.0.1:50061",
			TimeoutRaw: "10s",
		},
		Delivery: DeliveryConfig{
			MaxAttempts:    0,
			BackoffUnitRaw: "100ms",
			MaxWaitRaw:     "30s",
		},
		Dedup: DedupConfig{
			Capacity:            10000,
			SnapshotIntervalRaw: "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
	// Defaults are literal and always parse.
	_ = parseDurations(cfg)
	return cfg
}

// Path returns the config file location: $COURIER_CONFIG, else
// $XDG_CONFIG_HOME/courier/courier.yaml, else ~/.config/courier/courier.yaml.
func Path() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "courier", "courier.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "courier", "courier.yaml")
	}
	return filepath.Join(home, ".config", "courier", "courier.yaml")
}

// LoadDefault loads the file at Path, falling back to Default when it does
// not exist.
func LoadDefault() (*Config, error) {
	path := Path()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Keys absent from the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return fmt.Errorf("server.grpc_addr is required")
	}
	if c.Metrics.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required when metrics are enabled")
	}

	if c.Auth.Secret != "" && len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth.secret must be at least 32 bytes")
	}

	if c.Delivery.MaxAttempts < 0 {
		return fmt.Errorf("delivery.max_attempts must be >= 0, got %d", c.Delivery.MaxAttempts)
	}
	if c.Delivery.BackoffUnit <= 0 {
		return fmt.Errorf("delivery.backoff_unit must be positive")
	}
	if c.Delivery.MaxWait < 0 {
		return fmt.Errorf("delivery.max_wait must not be negative")
	}

	if c.Dedup.Capacity < 1 {
		return fmt.Errorf("dedup.capacity must be >= 1, got %d", c.Dedup.Capacity)
	}
	if c.Dedup.SnapshotPath != "" && c.Dedup.SnapshotInterval <= 0 {
		return fmt.Errorf("dedup.snapshot_interval must be positive when dedup.snapshot_path is set")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"client.timeout", cfg.Client.TimeoutRaw, &cfg.Client.Timeout},
		{"delivery.backoff_unit", cfg.Delivery.BackoffUnitRaw, &cfg.Delivery.BackoffUnit},
		{"delivery.max_wait", cfg.Delivery.MaxWaitRaw, &cfg.Delivery.MaxWait},
		{"dedup.snapshot_interval", cfg.Dedup.SnapshotIntervalRaw, &cfg.Dedup.SnapshotInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			*f.dst = 0
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
