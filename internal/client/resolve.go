// ABOUTME: Resolution of the gateway address and bearer token for CLI use
// ABOUTME: Checks explicit flags, then environment, then the on-disk token file

package client

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveHost returns the gateway base URL. Precedence is the explicit
// value, the SIGIL_HOST environment variable, then http://localhost:8080.
// A bare hostname gets an http:// prefix; plain HTTP is fine on a tailnet
// where WireGuard already encrypts.
func ResolveHost(explicit string) string {
	host := explicit
	if host == "" {
		host = os.Getenv("SIGIL_HOST")
	}
	if host == "" {
		return "http://localhost:8080"
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return strings.TrimRight(host, "/")
}

// ResolveToken returns the bearer token. Precedence is the explicit value,
// the SIGIL_TOKEN environment variable, then the token file written by
// bootstrap. An empty return means no token could be found.
func ResolveToken(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if token := os.Getenv("SIGIL_TOKEN"); token != "" {
		return token
	}

	data, err := os.ReadFile(TokenPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// TokenPath returns the location of the on-disk token file,
// $XDG_CONFIG_HOME/sigil/token or ~/.config/sigil/token.
func TokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "sigil", "token")
}
