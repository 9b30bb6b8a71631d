// ABOUTME: Dialer abstraction over MCP client connections
// ABOUTME: Production dialer speaks streamable HTTP with a bearer credential per connection

package bridge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Session is the slice of an MCP client session the bridge uses. A
// *mcp.ClientSession satisfies it.
type Session interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer opens an authenticated session to the upstream tool server. Every
// Dial yields a fresh connection; the bridge never reuses one across units
// of work.
type Dialer interface {
	Dial(ctx context.Context, credential string) (Session, error)
}

// StreamableDialer connects to a streamable HTTP MCP endpoint, presenting
// the credential as an Authorization bearer header on every request.
type StreamableDialer struct {
	// Endpoint is the upstream MCP URL.
	Endpoint string
	// HTTPClient overrides http.DefaultClient when set.
	HTTPClient *http.Client
	// Name and Version identify this client to the server. Both default.
	Name    string
	Version string
}

// Dial opens a new session. The context bounds connection establishment
// only; the returned session outlives it.
func (d *StreamableDialer) Dial(ctx context.Context, credential string) (Session, error) {
	if d.Endpoint == "" {
		return nil, fmt.Errorf("no endpoint configured")
	}

	name := d.Name
	if name == "" {
		name = "sigil-bridge"
	}
	version := d.Version
	if version == "" {
		version = "dev"
	}

	base := d.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	authed := &http.Client{
		Transport: &bearerTransport{credential: credential, base: base.Transport},
		Timeout:   base.Timeout,
	}

	transport := &mcp.StreamableClientTransport{
		Endpoint:   d.Endpoint,
		HTTPClient: authed,
	}
	client := mcp.NewClient(&mcp.Implementation{Name: name, Version: version}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", d.Endpoint, err)
	}
	return session, nil
}

// bearerTransport injects the captured credential into each outgoing request.
type bearerTransport struct {
	credential string
	base       http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.credential)
	return base.RoundTrip(clone)
}

// Ensure the production dialer satisfies the seam.
var _ Dialer = (*StreamableDialer)(nil)
