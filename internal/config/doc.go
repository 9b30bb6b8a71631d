// Package config handles configuration loading for sigil-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  service_token_key: "${SIGIL_SERVICE_TOKEN_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	bridge:
//	  connect_timeout: "5s"
//	  list_timeout: "10s"
//	  call_timeout: "60s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # API listener
//
// Database:
//
//	database:
//	  path: "/var/lib/sigil/gateway.db"
//
// Authentication:
//
//	auth:
//	  service_token_key: "${SIGIL_SERVICE_TOKEN_KEY}"  # base64 or hex, 32 bytes
//
// Bridge (upstream MCP tool server):
//
//	bridge:
//	  endpoint: "https://tools.example.com/mcp"
//	  default_credential: "${SIGIL_BRIDGE_CREDENTIAL}"
//	  cache_size: 32
//	  connect_timeout: "5s"
//	  list_timeout: "10s"
//	  call_timeout: "60s"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "sigil-gateway"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//	  funnel: false
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Server address presence (unless Tailscale serves instead)
//   - Database path presence
//   - Duration format validity
//   - Bridge cache size bounds
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/sigil/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
