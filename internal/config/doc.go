// Package config handles configuration loading for courier.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// Keys missing from the file keep the values from Default.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COURIER_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/courier/courier.yaml
//  3. ~/.config/courier/courier.yaml
//
// LoadDefault falls back to Default when the file does not exist.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  secret: "${COURIER_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	delivery:
//	  backoff_unit: "100ms"
//	  max_wait: "30s"
//
// # Configuration Sections
//
//	server:
//	  grpc_addr: "127.0.0.1:50061"  # receiver listen address
//	  http_addr: "127.0.0.1:9464"   # metrics endpoint
//
//	client:
//	  target: "127.0.0.1:50061"
//	  timeout: "10s"                # per attempt
//	  token: "${COURIER_TOKEN}"     # from `courier token`
//
//	auth:
//	  secret: "${COURIER_SECRET}"   # >= 32 bytes; empty = anonymous
//
//	delivery:
//	  max_attempts: 0               # 0 = until delivered or cancelled; 10 drops after ten tries
//	  backoff_unit: "100ms"         # Fibonacci multiplier
//	  max_wait: "30s"               # cap on a single wait
//
//	dedup:
//	  capacity: 10000
//	  snapshot_path: "/var/lib/courier/dedup.snap"
//	  snapshot_interval: "30s"
//
//	registry:
//	  files: ["/etc/courier/codes.toml"]
//
//	ledger:
//	  path: "/var/lib/courier/ledger.db"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//	  pushgateway: "http://127.0.0.1:9091"  # send runs push here when set
package config
