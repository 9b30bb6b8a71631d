// ABOUTME: Bridge client exposing remote MCP tools as locally callable wrappers
// ABOUTME: Connections are per-unit-of-work: discover, close; invoke, close

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/sigil/internal/schema"
)

// Default timeout bounds for the three network phases.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultListTimeout    = 10 * time.Second
	DefaultCallTimeout    = 60 * time.Second
)

// ToolFunc invokes a wrapped remote tool and returns its concatenated text
// output. Invocation errors propagate; a failed action stays visible.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is a locally callable wrapper around one remote tool definition. The
// schema is already sanitized; Call carries the credential captured at wrap
// time.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Call        ToolFunc
}

// Config assembles a bridge client. Dialer is required for any network use;
// everything else has defaults.
type Config struct {
	Dialer Dialer
	// Cache overrides the built-in memory cache.
	Cache ToolCache
	// DefaultCredential is used by GetTools when the caller supplies none.
	// It is injected here, never read from the environment by the bridge.
	DefaultCredential string
	Logger            *slog.Logger
	ConnectTimeout    time.Duration
	ListTimeout       time.Duration
	CallTimeout       time.Duration
}

// Client discovers and invokes remote tools. Tool definitions are cached per
// credential; connections are never cached.
type Client struct {
	dialer            Dialer
	cache             ToolCache
	defaultCredential string
	logger            *slog.Logger
	connectTimeout    time.Duration
	listTimeout       time.Duration
	callTimeout       time.Duration

	// wrapFn can be set by tests to intercept tool wrapping.
	wrapFn func(credential string, def *mcp.Tool) (Tool, error)
}

// New creates a bridge client from the config.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache(DefaultCacheSize)
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	listTimeout := cfg.ListTimeout
	if listTimeout <= 0 {
		listTimeout = DefaultListTimeout
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}

	return &Client{
		dialer:            cfg.Dialer,
		cache:             cache,
		defaultCredential: cfg.DefaultCredential,
		logger:            logger.With("component", "bridge"),
		connectTimeout:    connectTimeout,
		listTimeout:       listTimeout,
		callTimeout:       callTimeout,
	}
}

// GetTools returns the wrapped tool set for the credential, falling back to
// the configured default when none is supplied. With no credential at all it
// returns an empty map without touching the network. Discovery failures of
// any kind degrade to an empty map at this boundary; they are logged, never
// raised.
func (c *Client) GetTools(ctx context.Context, credential string) map[string]Tool {
	if credential == "" {
		credential = c.defaultCredential
	}
	if credential == "" {
		return map[string]Tool{}
	}

	if tools, ok := c.cache.Get(credential); ok {
		return tools
	}

	tools, err := c.discover(ctx, credential)
	if err != nil {
		c.logger.Warn("tool discovery failed", "error", err)
		return map[string]Tool{}
	}

	c.cache.Put(credential, tools)
	return tools
}

// ClearCache drops every cached tool definition. There is no connection
// cache to drop; connections never outlive their unit of work.
func (c *Client) ClearCache() {
	c.cache.Clear()
}

// discover connects, lists the remote tools, and wraps each one. The
// connection closes before discover returns regardless of outcome. A single
// tool's wrap failure skips that tool and keeps the rest.
func (c *Client) discover(ctx context.Context, credential string) (map[string]Tool, error) {
	if c.dialer == nil {
		return nil, fmt.Errorf("no dialer configured")
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, c.connectTimeout)
	session, err := c.dialer.Dial(dialCtx, credential)
	cancelDial()
	if err != nil {
		return nil, fmt.Errorf("connecting to tool server: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			c.logger.Debug("closing discovery session", "error", cerr)
		}
	}()

	listCtx, cancelList := context.WithTimeout(ctx, c.listTimeout)
	defer cancelList()

	result, err := session.ListTools(listCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}

	tools := make(map[string]Tool, len(result.Tools))
	for _, def := range result.Tools {
		tool, err := c.wrap(credential, def)
		if err != nil {
			name := ""
			if def != nil {
				name = def.Name
			}
			c.logger.Warn("skipping tool", "tool", name, "error", err)
			continue
		}
		tools[tool.Name] = tool
	}

	c.logger.Debug("discovered tools", "count", len(tools))
	return tools, nil
}

func (c *Client) wrap(credential string, def *mcp.Tool) (Tool, error) {
	if c.wrapFn != nil {
		return c.wrapFn(credential, def)
	}
	return c.buildTool(credential, def)
}

// buildTool sanitizes the definition's schema and binds the invocation
// closure. The credential is captured here, at wrap time; later calls never
// read shared mutable state.
func (c *Client) buildTool(credential string, def *mcp.Tool) (Tool, error) {
	if def == nil || def.Name == "" {
		return Tool{}, fmt.Errorf("tool definition has no name")
	}

	var raw json.RawMessage
	if def.InputSchema != nil {
		data, err := json.Marshal(def.InputSchema)
		if err != nil {
			return Tool{}, fmt.Errorf("encoding input schema: %w", err)
		}
		raw = data
	}

	name := def.Name
	call := func(ctx context.Context, args map[string]any) (string, error) {
		return c.invoke(ctx, credential, name, args)
	}

	return Tool{
		Name:        name,
		Description: def.Description,
		InputSchema: schema.SanitizeRaw(raw),
		Call:        call,
	}, nil
}

// invoke performs exactly one remote call over a fresh connection. The
// connection is closed before returning, success or error, even when the
// close itself fails.
func (c *Client) invoke(ctx context.Context, credential, name string, args map[string]any) (string, error) {
	if c.dialer == nil {
		return "", fmt.Errorf("no dialer configured")
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, c.connectTimeout)
	session, err := c.dialer.Dial(dialCtx, credential)
	cancelDial()
	if err != nil {
		return "", fmt.Errorf("connecting for tool call: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			c.logger.Debug("closing invocation session", "error", cerr)
		}
	}()

	callCtx, cancelCall := context.WithTimeout(ctx, c.callTimeout)
	defer cancelCall()

	result, err := session.CallTool(callCtx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("calling tool %s: %w", name, err)
	}
	if result.IsError {
		return "", fmt.Errorf("tool %s failed: %s", name, textContent(result))
	}

	return textContent(result), nil
}

// textContent concatenates the text-typed content parts of a result. Binary
// and resource parts are ignored.
func textContent(result *mcp.CallToolResult) string {
	var sb strings.Builder
	for _, part := range result.Content {
		if text, ok := part.(*mcp.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String()
}
