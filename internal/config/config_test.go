// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "courier.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  grpc_addr: "0.0.0.0:50061"
  http_addr: "0.0.0.0:9464"

client:
  target: "receiver.internal:50061"
  timeout: "5s"

delivery:
  max_attempts: 7
  backoff_unit: "250ms"
  max_wait: "1m"

dedup:
  capacity: 500
  snapshot_path: "/var/lib/courier/dedup.snap"
  snapshot_interval: "15s"

registry:
  files:
    - "/etc/courier/extra.toml"

ledger:
  path: "./ledger.db"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.GRPCAddr != "0.0.0.0:50061" {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, "0.0.0.0:50061")
	}
	if cfg.Server.HTTPAddr != "0.0.0.0:9464" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:9464")
	}
	if cfg.Client.Target != "receiver.internal:50061" {
		t.Errorf("Client.Target = %q, want %q", cfg.Client.Target, "receiver.internal:50061")
	}
	if cfg.Client.Timeout != 5*time.Second {
		t.Errorf("Client.Timeout = %v, want %v", cfg.Client.Timeout, 5*time.Second)
	}

	if cfg.Delivery.MaxAttempts != 7 {
		t.Errorf("Delivery.MaxAttempts = %d, want 7", cfg.Delivery.MaxAttempts)
	}
	if cfg.Delivery.BackoffUnit != 250*time.Millisecond {
		t.Errorf("Delivery.BackoffUnit = %v, want %v", cfg.Delivery.BackoffUnit, 250*time.Millisecond)
	}
	if cfg.Delivery.MaxWait != time.Minute {
		t.Errorf("Delivery.MaxWait = %v, want %v", cfg.Delivery.MaxWait, time.Minute)
	}

	if cfg.Dedup.Capacity != 500 {
		t.Errorf("Dedup.Capacity = %d, want 500", cfg.Dedup.Capacity)
	}
	if cfg.Dedup.SnapshotPath != "/var/lib/courier/dedup.snap" {
		t.Errorf("Dedup.SnapshotPath = %q", cfg.Dedup.SnapshotPath)
	}
	if cfg.Dedup.SnapshotInterval != 15*time.Second {
		t.Errorf("Dedup.SnapshotInterval = %v, want %v", cfg.Dedup.SnapshotInterval, 15*time.Second)
	}

	if len(cfg.Registry.Files) != 1 || cfg.Registry.Files[0] != "/etc/courier/extra.toml" {
		t.Errorf("Registry.Files = %v", cfg.Registry.Files)
	}
	if cfg.Ledger.Path != "./ledger.db" {
		t.Errorf("Ledger.Path = %q, want %q", cfg.Ledger.Path, "./ledger.db")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	configPath := writeConfig(t, `
dedup:
  capacity: 42
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	def := Default()
	if cfg.Dedup.Capacity != 42 {
		t.Errorf("Dedup.Capacity = %d, want 42", cfg.Dedup.Capacity)
	}
	if cfg.Server.GRPCAddr != def.Server.GRPCAddr {
		t.Errorf("Server.GRPCAddr = %q, want default %q", cfg.Server.GRPCAddr, def.Server.GRPCAddr)
	}
	if cfg.Delivery.BackoffUnit != 100*time.Millisecond {
		t.Errorf("Delivery.BackoffUnit = %v, want 100ms", cfg.Delivery.BackoffUnit)
	}
	if cfg.Delivery.MaxWait != 30*time.Second {
		t.Errorf("Delivery.MaxWait = %v, want 30s", cfg.Delivery.MaxWait)
	}
}

func TestDefault_RetriesUntilDelivered(t *testing.T) {
	t.Setenv(EnvPath, filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if cfg.Delivery.MaxAttempts != 0 {
		t.Errorf("default Delivery.MaxAttempts = %d, want 0 (unbounded)", cfg.Delivery.MaxAttempts)
	}

	configPath := writeConfig(t, `
dedup:
  capacity: 42
`)
	cfg, err = Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Delivery.MaxAttempts != 0 {
		t.Errorf("Delivery.MaxAttempts = %d, want 0 when the file omits it", cfg.Delivery.MaxAttempts)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_COURIER_DATA", "/srv/courier")
	t.Setenv("TEST_COURIER_TARGET", "10.0.0.5:50061")

	configPath := writeConfig(t, `
client:
  target: "${TEST_COURIER_TARGET}"
ledger:
  path: "${TEST_COURIER_DATA}/ledger.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Client.Target != "10.0.0.5:50061" {
		t.Errorf("Client.Target = %q, want %q", cfg.Client.Target, "10.0.0.5:50061")
	}
	if cfg.Ledger.Path != "/srv/courier/ledger.db" {
		t.Errorf("Ledger.Path = %q, want %q", cfg.Ledger.Path, "/srv/courier/ledger.db")
	}
}

func TestLoad_AuthSecretFromEnv(t *testing.T) {
	t.Setenv("TEST_COURIER_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("TEST_COURIER_TOKEN", "header.payload.sig")

	configPath := writeConfig(t, `
auth:
  secret: "${TEST_COURIER_SECRET}"
client:
  token: "${TEST_COURIER_TOKEN}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.Secret != "0123456789abcdef0123456789abcdef" {
		t.Errorf("Auth.Secret = %q", cfg.Auth.Secret)
	}
	if cfg.Client.Token != "header.payload.sig" {
		t.Errorf("Client.Token = %q", cfg.Client.Token)
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	os.Unsetenv("UNSET_VAR_FOR_TEST")

	configPath := writeConfig(t, `
ledger:
  path: "${UNSET_VAR_FOR_TEST}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Ledger.Path != "" {
		t.Errorf("Ledger.Path = %q, want empty string for unset env var", cfg.Ledger.Path)
	}
}

func TestLoad_DurationParsing(t *testing.T) {
	configPath := writeConfig(t, `
delivery:
  backoff_unit: "1m30s"
  max_wait: "2h"
dedup:
  snapshot_interval: "10m"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expectedUnit := 1*time.Minute + 30*time.Second
	if cfg.Delivery.BackoffUnit != expectedUnit {
		t.Errorf("Delivery.BackoffUnit = %v, want %v", cfg.Delivery.BackoffUnit, expectedUnit)
	}
	if cfg.Delivery.MaxWait != 2*time.Hour {
		t.Errorf("Delivery.MaxWait = %v, want %v", cfg.Delivery.MaxWait, 2*time.Hour)
	}
	if cfg.Dedup.SnapshotInterval != 10*time.Minute {
		t.Errorf("Dedup.SnapshotInterval = %v, want %v", cfg.Dedup.SnapshotInterval, 10*time.Minute)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/courier.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
server:
  grpc_addr: "0.0.0.0:50061"
  http_addr "missing colon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
delivery:
  backoff_unit: "invalid-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "delivery.backoff_unit") {
		t.Errorf("Load() error = %q, want it to name delivery.backoff_unit", err.Error())
	}
}

func TestLoad_InvalidFields(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
		wantErrSubstr string
	}{
		{
			name: "missing grpc_addr",
			configContent: `
server:
  grpc_addr: ""
`,
			wantErrSubstr: "server.grpc_addr is required",
		},
		{
			name: "metrics without http_addr",
			configContent: `
server:
  http_addr: ""
metrics:
  enabled: true
`,
			wantErrSubstr: "server.http_addr is required",
		},
		{
			name: "negative max_attempts",
			configContent: `
delivery:
  max_attempts: -1
`,
			wantErrSubstr: "delivery.max_attempts",
		},
		{
			name: "zero backoff unit",
			configContent: `
delivery:
  backoff_unit: "0s"
`,
			wantErrSubstr: "delivery.backoff_unit must be positive",
		},
		{
			name: "zero capacity",
			configContent: `
dedup:
  capacity: 0
`,
			wantErrSubstr: "dedup.capacity",
		},
		{
			name: "snapshot path without interval",
			configContent: `
dedup:
  snapshot_path: "./dedup.snap"
  snapshot_interval: ""
`,
			wantErrSubstr: "dedup.snapshot_interval",
		},
		{
			name: "short auth secret",
			configContent: `
auth:
  secret: "too-short"
`,
			wantErrSubstr: "auth.secret",
		},
		{
			name: "unknown log level",
			configContent: `
logging:
  level: "verbose"
`,
			wantErrSubstr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.configContent))
			if err == nil {
				t.Errorf("Load() expected error containing %q, got nil", tt.wantErrSubstr)
				return
			}

			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Load() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Run("explicit env var wins", func(t *testing.T) {
		t.Setenv(EnvPath, "/etc/courier/custom.yaml")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		if got := Path(); got != "/etc/courier/custom.yaml" {
			t.Errorf("Path() = %q, want %q", got, "/etc/courier/custom.yaml")
		}
	})

	t.Run("xdg config home", func(t *testing.T) {
		t.Setenv(EnvPath, "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		want := filepath.Join("/xdg", "courier", "courier.yaml")
		if got := Path(); got != want {
			t.Errorf("Path() = %q, want %q", got, want)
		}
	})
}

func TestLoadDefault_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvPath, filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
	if cfg.Dedup.Capacity != Default().Dedup.Capacity {
		t.Errorf("Dedup.Capacity = %d, want default", cfg.Dedup.Capacity)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single env var",
			input:    "${FOO}",
			expected: "bar",
		},
		{
			name:     "env var with surrounding text",
			input:    "prefix-${FOO}-suffix",
			expected: "prefix-bar-suffix",
		},
		{
			name:     "multiple env vars",
			input:    "${FOO}/${BAZ}",
			expected: "bar/qux",
		},
		{
			name:     "no env vars",
			input:    "no-vars-here",
			expected: "no-vars-here",
		},
		{
			name:     "unset env var",
			input:    "${UNSET_VAR}",
			expected: "",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
