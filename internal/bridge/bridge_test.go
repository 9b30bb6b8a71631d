// ABOUTME: Tests for the bridge client against in-memory MCP servers
// ABOUTME: Covers caching, failure degradation, credential capture, and invocation

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoArgs struct {
	Text string `json:"text"`
}

func echoHandler() mcp.ToolHandlerFor[echoArgs, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, args echoArgs) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: args.Text}},
		}, nil, nil
	}
}

func greetHandler() mcp.ToolHandlerFor[struct{}, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: "Hello, "},
				&mcp.TextContent{Text: "world!"},
			},
		}, nil, nil
	}
}

func jammedHandler() mcp.ToolHandlerFor[struct{}, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "the gears jammed"}},
		}, nil, nil
	}
}

func registerFixtureTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{Name: "echo", Description: "Returns the provided text unchanged."}, echoHandler())
	mcp.AddTool(server, &mcp.Tool{Name: "greet", Description: "Returns a greeting split across two text parts."}, greetHandler())
	mcp.AddTool(server, &mcp.Tool{Name: "always_fails", Description: "Reports a tool execution failure."}, jammedHandler())
}

// memoryDialer spins up a fresh in-memory MCP server for every dial and
// records dials, closes, and the credential presented each time.
type memoryDialer struct {
	mu          sync.Mutex
	runCtx      context.Context
	register    func(*mcp.Server)
	dials       int
	closes      int
	credentials []string
	failDial    bool
	closeErr    error
}

func newMemoryDialer(t *testing.T, register func(*mcp.Server)) *memoryDialer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &memoryDialer{runCtx: ctx, register: register}
}

func (d *memoryDialer) Dial(ctx context.Context, credential string) (Session, error) {
	d.mu.Lock()
	d.dials++
	d.credentials = append(d.credentials, credential)
	fail := d.failDial
	d.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("dial refused")
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "fixture", Version: "test"}, nil)
	if d.register != nil {
		d.register(server)
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	go func() { _ = server.Run(d.runCtx, serverTransport) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "bridge-test", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		return nil, err
	}
	return &countingSession{Session: session, dialer: d}, nil
}

func (d *memoryDialer) setFailDial(fail bool) {
	d.mu.Lock()
	d.failDial = fail
	d.mu.Unlock()
}

func (d *memoryDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *memoryDialer) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

func (d *memoryDialer) lastCredential() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.credentials) == 0 {
		return ""
	}
	return d.credentials[len(d.credentials)-1]
}

// countingSession counts Close calls and can inject a close failure.
type countingSession struct {
	Session
	dialer *memoryDialer
}

func (s *countingSession) Close() error {
	s.dialer.mu.Lock()
	s.dialer.closes++
	injected := s.dialer.closeErr
	s.dialer.mu.Unlock()

	if err := s.Session.Close(); err != nil && injected == nil {
		return err
	}
	return injected
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetToolsNoCredentialSkipsNetwork(t *testing.T) {
	dialer := newMemoryDialer(t, registerFixtureTools)
	client := New(Config{Dialer: dialer, Logger: discardLogger()})

	tools := client.GetTools(context.Background(), "")

	assert.NotNil(t, tools)
	assert.Empty(t, tools)
	assert.Equal(t, 0, dialer.dialCount())
}

func TestGetToolsDiscoversAndCaches(t *testing.T) {
	dialer := newMemoryDialer(t, registerFixtureTools)
	client := New(Config{Dialer: dialer, Logger: discardLogger()})

	first := client.GetTools(context.Background(), "cred-a")
	require.Len(t, first, 3)
	require.Contains(t, first, "echo")
	assert.Equal(t, "Returns the provided text unchanged.", first["echo"].Description)
	assert.Equal(t, "cred-a", dialer.lastCredential())

	second := client.GetTools(context.Background(), "cred-a")
	require.Len(t, second, 3)
	assert.Equal(t, 1, dialer.dialCount(), "second lookup should hit the cache")
}

func TestGetToolsSanitizesSchemas(t *testing.T) {
	dialer := newMemoryDialer(t, registerFixtureTools)
	client := New(Config{Dialer: dialer, Logger: discardLogger()})

	tools := client.GetTools(context.Background(), "cred-a")
	echo, ok := tools["echo"]
	require.True(t, ok)
	require.NotEmpty(t, echo.InputSchema)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(echo.InputSchema, &parsed))
	assert.Equal(t, "object", parsed["type"])
	props, ok := parsed["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "text")
}

func TestGetToolsDefaultCredentialFallback(t *testing.T) {
	dialer := newMemoryDialer(t, registerFixtureTools)
	client := New(Config{Dialer: dialer, DefaultCredential: "standing-cred", Logger: discardLogger()})

	tools := client.GetTools(context.Background(), "")

	require.Len(t, tools, 3)
	assert.Equal(t, "standing-cred", dialer.lastCredential())
}

func TestGetToolsDiscoveryFailureReturnsEmpty(t *testing.T) {
	dialer := newMemoryDialer(t, registerFixtureTools)
	dialer.setFailDial(true)
	client := New(Config{Dialer: dialer, Logger: discardLogger()})

	tools := client.GetTools(context.Background(), "cred-a")
	assert.NotNil(t, tools)
	assert.Empty(t, tools)

	// Failures are not cached; the next lookup tries again.
	dialer.setFailDial(false)
	tools = client.GetTools(context.Background(), "cred-a")
	assert.Len(t, tools, 3)
	assert.Equal(t, 2, dialer.dialCount())
}

func TestGetToolsNoDialerReturnsEmpty(t *testing.T) {
	client := New(Config{Logger: discardLogger()})

	tools := client.GetTools(context.Background(), "cred-a")

	assert.NotNil(t, tools)
	assert.Empty(t, tools)
}

func TestGetToolsSkipsToolThatFailsToWrap(t *testing.T) {
	dialer := newMemoryDialer(t, registerFixtureTools)
	client := New(Config{Dialer: dialer, Logger: discardLogger()})
	client.wrapFn = func(credential string, def *mcp.Tool) (Tool, error) {
		if def != nil && def.Name == "greet" {
			return Tool{}, fmt.Errorf("bad definition")
		}
		return client.buildTool(credential, def)
	}

	tools := client.GetTools(context.Background(), "cred-a")

	assert.Len(t, tools, 2)
	assert.NotContains(t, tools, "greet")
	assert.Contains(t, tools, "echo")
	assert.Contains(t, tools, "always_fails")
}

func TestClearCacheForcesRediscovery(t *testing.T) {
	dialer := newMemoryDialer(t, registerFixtureTools)
	client := New(Config{Dialer: dialer, Logger: discardLogger()})

	client.GetTools(context.Background(), "cred-a")
	client.ClearCache()
	client.GetTools(context.Background(), "cred-a")

	assert.Equal(t, 2, dialer.dialCount())
}

func TestDiscoveryClosesConnection(t *testing.T) {
	dialer := newMemoryDialer(t, registerFixtureTools)
	client := New(Config{Dialer: dialer, Logger: discardLogger()})

	client.GetTools(context.Background(), "cred-a")

	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, 1, dialer.closeCount(), "discovery must close its connection before returning")
}

func TestToolCallRoundTrip(t *testing.T) {
	dialer := newMemoryDialer(t, registerFixtureTools)
	client := New(Config{Dialer: dialer, Logger: discardLogger()})

	tools := client.GetTools(context.Background(), "cred-a")
	echo, ok := tools["echo"]
	require.True(t, ok)

	out, err := echo.Call(context.Background(), map[string]any{"text": "round trip"})

	require.NoError(t, err)
	assert.Equal(t, "round trip", out)
	assert.Equal(t, 2, dialer.dialCount(), "invocation uses a fresh connection")
	assert.Equal(t, 2, dialer.closeCount())
}

func TestToolCallConcatenatesTextParts(t *testing.T) {
	dialer := newMemoryDialer(t, registerFixtureTools)
	client := New(Config{Dialer: dialer, Logger: discardLogger()})

	tools := client.GetTools(context.Background(), "cred-a")
	greet, ok := tools["greet"]
	require.True(t, ok)

	out, err := greet.Call(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", out)
}

func TestToolCallErrorPropagates(t *testing.T) {
	dialer := newMemoryDialer(t, registerFixtureTools)
	client := New(Config{Dialer: dialer, Logger: discardLogger()})

	tools := client.GetTools(context.Background(), "cred-a")
	failing, ok := tools["always_fails"]
	require.True(t, ok)

	_, err := failing.Call(context.Background(), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "the gears jammed")
}

func TestToolCallSurvivesCloseFailure(t *testing.T) {
	dialer := newMemoryDialer(t, registerFixtureTools)
	dialer.closeErr = fmt.Errorf("close exploded")
	client := New(Config{Dialer: dialer, Logger: discardLogger()})

	tools := client.GetTools(context.Background(), "cred-a")
	echo, ok := tools["echo"]
	require.True(t, ok)

	out, err := echo.Call(context.Background(), map[string]any{"text": "still here"})

	require.NoError(t, err)
	assert.Equal(t, "still here", out)
}

func TestToolCallUsesWrapTimeCredential(t *testing.T) {
	dialer := newMemoryDialer(t, registerFixtureTools)
	client := New(Config{Dialer: dialer, Logger: discardLogger()})

	first := client.GetTools(context.Background(), "cred-a")
	echoA, ok := first["echo"]
	require.True(t, ok)

	// A later discovery for another credential must not rebind earlier wrappers.
	client.GetTools(context.Background(), "cred-b")

	_, err := echoA.Call(context.Background(), map[string]any{"text": "hi"})

	require.NoError(t, err)
	assert.Equal(t, "cred-a", dialer.lastCredential())
}
