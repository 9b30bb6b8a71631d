// Package client implements an HTTP client for the sigil gateway API.
//
// # Overview
//
// The CLI binaries (sigil-admin, sigil-gateway) use this package to talk
// to a running gateway. It wraps bearer-token authentication, JSON
// encoding, and the gateway's uniform {"error": ...} body.
//
// # Methods
//
// One method per API endpoint:
//
//   - Me: Returns the authenticated caller's identity
//   - CreateOwner: Registers an owner and returns its bootstrap token
//   - CreateToken: Mints a new access token (the secret appears once)
//   - ListTokens: Lists the caller's token metadata
//   - RevokeToken: Revokes one token by ID
//   - ServiceToken: Returns the caller's bridge credential
//   - RevokeServiceTokens: Revokes all of the caller's service tokens
//   - ListTools: Lists the bridge tool catalog
//   - CallTool: Invokes a named tool and returns its text output
//   - Health: Probes the unauthenticated health endpoint
//
// # Configuration
//
// ResolveHost and ResolveToken pick up the gateway address and bearer
// token from explicit flags, the SIGIL_HOST and SIGIL_TOKEN environment
// variables, or the token file bootstrap writes under ~/.config/sigil.
//
// # Errors
//
// Non-2xx responses come back as *APIError carrying the status code and
// the gateway's error message, so callers can distinguish auth failures
// from tool failures.
package client
