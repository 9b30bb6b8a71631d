// Package gateway orchestrates the sigil server components.
//
// # Overview
//
// The gateway package is the central coordinator of the sigil server. It
// owns and manages the major components: SQLite store, token service, tool
// bridge, and HTTP server.
//
// # Gateway Struct
//
// The Gateway struct is the main entry point:
//
//	type Gateway struct {
//	    config      *config.Config
//	    store       store.Store
//	    tokens      *token.Service
//	    bridge      toolBridge
//	    httpServer  *http.Server
//	    tsnetServer *tsnet.Server
//	    // ... and more
//	}
//
// # HTTP API
//
// The gateway exposes HTTP endpoints in api.go:
//
//   - GET /api/me - Authenticated caller's owner record
//   - POST /api/owners - Create an owner with its bootstrap token
//   - GET /api/tokens - List the caller's token metadata
//   - POST /api/tokens - Create a token (raw secret returned once)
//   - DELETE /api/tokens/{id} - Revoke one of the caller's tokens
//   - POST /api/service-token - Get or create the caller's bridge credential
//   - DELETE /api/service-token - Revoke the caller's service tokens
//   - GET /api/tools - List bridge tools (?refresh=true drops the cache)
//   - POST /api/tools/{name} - Invoke a bridge tool
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (store answering queries)
//
// All /api/ routes require a bearer token; credential failures are answered
// with one uniform 401 body regardless of cause.
//
// # Deployment Modes
//
// The gateway serves over a plain TCP listener or joins a tailnet via tsnet.
// With Tailscale enabled, three listener modes exist: plain HTTP on :80,
// HTTPS on :443 with Tailscale-provisioned certs, or public Funnel on :443.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
// Graceful shutdown:
//
//	cancel()
//
// Run drains in-flight requests for up to five seconds, then closes the
// tsnet node and the store.
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, listeners, Run/Shutdown
//   - api.go: HTTP handlers and JSON request/response types
package gateway
