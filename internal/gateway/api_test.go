// ABOUTME: Tests for HTTP API handlers covering tokens, owners, and bridge tools
// ABOUTME: Drives handlers directly with injected identities and a stub bridge

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/sigil/internal/auth"
	"github.com/2389/sigil/internal/bridge"
	"github.com/2389/sigil/internal/config"
	"github.com/2389/sigil/internal/crypt"
	"github.com/2389/sigil/internal/store"
	"github.com/2389/sigil/internal/token"
)

// newTestGateway creates a gateway over a temp-file store with service
// tokens configured.
func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	key, err := crypt.GenerateKey()
	require.NoError(t, err)

	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "localhost:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "sigil.db")},
		Auth:     config.AuthConfig{ServiceTokenKey: crypt.EncodeKey(key)},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gw, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.store.Close() })

	return gw
}

// newTestGatewayNoKey creates a gateway without a service-token key.
func newTestGatewayNoKey(t *testing.T) *Gateway {
	t.Helper()

	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "localhost:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "sigil.db")},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gw, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.store.Close() })

	return gw
}

// seedOwner inserts an owner row directly into the gateway's store.
func seedOwner(t *testing.T, gw *Gateway, id, name string) {
	t.Helper()
	err := gw.store.CreateOwner(context.Background(), &store.Owner{
		ID:          id,
		DisplayName: name,
		CreatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
}

// authedRequest builds a request carrying an already-validated identity, the
// state a request is in after passing the auth middleware.
func authedRequest(method, target string, body io.Reader, identity *auth.Identity) *http.Request {
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func intPtr(n int) *int { return &n }

// stubBridge replaces the bridge client in handler tests. It records the
// credentials handed to GetTools and how often the cache was cleared.
type stubBridge struct {
	tools       map[string]bridge.Tool
	credentials []string
	clearCalls  int
}

func (s *stubBridge) GetTools(ctx context.Context, credential string) map[string]bridge.Tool {
	s.credentials = append(s.credentials, credential)
	if s.tools == nil {
		return map[string]bridge.Tool{}
	}
	return s.tools
}

func (s *stubBridge) ClearCache() { s.clearCalls++ }

func TestHandleMe(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleMe(rec, authedRequest(http.MethodGet, "/api/me", nil, identity))

	require.Equal(t, http.StatusOK, rec.Code)
	var me MeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, "owner-1", me.OwnerID)
	assert.Equal(t, "token-1", me.TokenID)
	assert.Equal(t, "Ada", me.DisplayName)
}

func TestHandleMe_UnknownOwnerOmitsName(t *testing.T) {
	gw := newTestGateway(t)
	identity := &auth.Identity{OwnerID: "ghost", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleMe(rec, authedRequest(http.MethodGet, "/api/me", nil, identity))

	require.Equal(t, http.StatusOK, rec.Code)
	var me MeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, "ghost", me.OwnerID)
	assert.Empty(t, me.DisplayName)
}

func TestHandleMe_MethodNotAllowed(t *testing.T) {
	gw := newTestGateway(t)
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleMe(rec, authedRequest(http.MethodPost, "/api/me", nil, identity))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleOwners_CreatesOwnerAndBootstrapToken(t *testing.T) {
	gw := newTestGateway(t)
	identity := &auth.Identity{OwnerID: "admin", TokenID: "token-1"}

	body := jsonBody(t, CreateOwnerRequest{DisplayName: "Grace"})
	rec := httptest.NewRecorder()
	gw.handleOwners(rec, authedRequest(http.MethodPost, "/api/owners", body, identity))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp CreateOwnerResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.NotEmpty(t, resp.Owner.ID)
	assert.Equal(t, "Grace", resp.Owner.DisplayName)
	assert.Equal(t, "bootstrap", resp.Token.Name)
	require.True(t, token.ValidFormat(resp.Secret))

	// The returned secret authenticates as the new owner.
	validated, err := gw.tokens.Validate(context.Background(), resp.Secret)
	require.NoError(t, err)
	assert.Equal(t, resp.Owner.ID, validated.OwnerID)
}

func TestHandleOwners_ExplicitID(t *testing.T) {
	gw := newTestGateway(t)
	identity := &auth.Identity{OwnerID: "admin", TokenID: "token-1"}

	body := jsonBody(t, CreateOwnerRequest{ID: "grace", DisplayName: "Grace"})
	rec := httptest.NewRecorder()
	gw.handleOwners(rec, authedRequest(http.MethodPost, "/api/owners", body, identity))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp CreateOwnerResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "grace", resp.Owner.ID)
}

func TestHandleOwners_DuplicateID(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "grace", "Grace")
	identity := &auth.Identity{OwnerID: "admin", TokenID: "token-1"}

	body := jsonBody(t, CreateOwnerRequest{ID: "grace", DisplayName: "Grace Again"})
	rec := httptest.NewRecorder()
	gw.handleOwners(rec, authedRequest(http.MethodPost, "/api/owners", body, identity))

	require.Equal(t, http.StatusConflict, rec.Code)
	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "owner already exists", errResp["error"])
}

func TestHandleOwners_MissingDisplayName(t *testing.T) {
	gw := newTestGateway(t)
	identity := &auth.Identity{OwnerID: "admin", TokenID: "token-1"}

	body := jsonBody(t, CreateOwnerRequest{})
	rec := httptest.NewRecorder()
	gw.handleOwners(rec, authedRequest(http.MethodPost, "/api/owners", body, identity))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateToken(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	body := jsonBody(t, CreateTokenRequest{Name: "laptop"})
	rec := httptest.NewRecorder()
	gw.handleTokens(rec, authedRequest(http.MethodPost, "/api/tokens", body, identity))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp CreateTokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Equal(t, "laptop", resp.Token.Name)
	assert.NotEmpty(t, resp.Token.ExpiresAt, "default TTL should set an expiry")
	require.True(t, token.ValidFormat(resp.Secret))
	assert.True(t, strings.HasPrefix(resp.Secret, resp.Token.Prefix))

	validated, err := gw.tokens.Validate(context.Background(), resp.Secret)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", validated.OwnerID)
}

func TestHandleCreateToken_NeverExpires(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	body := jsonBody(t, CreateTokenRequest{Name: "forever", TTLDays: intPtr(0)})
	rec := httptest.NewRecorder()
	gw.handleTokens(rec, authedRequest(http.MethodPost, "/api/tokens", body, identity))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp CreateTokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Token.ExpiresAt)
}

func TestHandleCreateToken_Validation(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	tests := []struct {
		name    string
		req     CreateTokenRequest
		wantErr string
	}{
		{
			name:    "missing name",
			req:     CreateTokenRequest{},
			wantErr: "name is required",
		},
		{
			name:    "negative ttl",
			req:     CreateTokenRequest{Name: "x", TTLDays: intPtr(-1)},
			wantErr: "ttl_days cannot be negative",
		},
		{
			name:    "ttl too long",
			req:     CreateTokenRequest{Name: "x", TTLDays: intPtr(400)},
			wantErr: "ttl_days exceeds maximum of 365 days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			gw.handleTokens(rec, authedRequest(http.MethodPost, "/api/tokens", jsonBody(t, tt.req), identity))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var errResp map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
			assert.Equal(t, tt.wantErr, errResp["error"])
		})
	}
}

func TestHandleCreateToken_InvalidJSON(t *testing.T) {
	gw := newTestGateway(t)
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleTokens(rec, authedRequest(http.MethodPost, "/api/tokens", strings.NewReader("not json"), identity))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListTokens_ScopedToCaller(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	seedOwner(t, gw, "owner-2", "Grace")
	ctx := context.Background()

	_, err := gw.tokens.Create(ctx, "owner-1", "laptop", time.Hour)
	require.NoError(t, err)
	_, err = gw.tokens.Create(ctx, "owner-1", "phone", time.Hour)
	require.NoError(t, err)
	_, err = gw.tokens.Create(ctx, "owner-2", "other", time.Hour)
	require.NoError(t, err)

	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}
	rec := httptest.NewRecorder()
	gw.handleTokens(rec, authedRequest(http.MethodGet, "/api/tokens", nil, identity))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []TokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	require.Len(t, resp, 2)
	names := []string{resp[0].Name, resp[1].Name}
	assert.ElementsMatch(t, []string{"laptop", "phone"}, names)
	for _, tok := range resp {
		assert.NotEmpty(t, tok.Prefix)
		assert.NotEmpty(t, tok.CreatedAt)
	}
}

func TestHandleTokens_MethodNotAllowed(t *testing.T) {
	gw := newTestGateway(t)
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleTokens(rec, authedRequest(http.MethodDelete, "/api/tokens", nil, identity))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleTokenByID_Revoke(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	created, err := gw.tokens.Create(context.Background(), "owner-1", "laptop", time.Hour)
	require.NoError(t, err)

	identity := &auth.Identity{OwnerID: "owner-1", TokenID: created.Token.ID}
	rec := httptest.NewRecorder()
	gw.handleTokenByID(rec, authedRequest(http.MethodDelete, "/api/tokens/"+created.Token.ID, nil, identity))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RevokeTokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Revoked)

	_, err = gw.tokens.Validate(context.Background(), created.Secret)
	assert.ErrorIs(t, err, token.ErrNoMatch)
}

func TestHandleTokenByID_OtherOwnersToken(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	seedOwner(t, gw, "owner-2", "Grace")
	created, err := gw.tokens.Create(context.Background(), "owner-2", "other", time.Hour)
	require.NoError(t, err)

	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}
	rec := httptest.NewRecorder()
	gw.handleTokenByID(rec, authedRequest(http.MethodDelete, "/api/tokens/"+created.Token.ID, nil, identity))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RevokeTokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Revoked)

	// The other owner's token still works.
	_, err = gw.tokens.Validate(context.Background(), created.Secret)
	assert.NoError(t, err)
}

func TestHandleTokenByID_MissingID(t *testing.T) {
	gw := newTestGateway(t)
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleTokenByID(rec, authedRequest(http.MethodDelete, "/api/tokens/", nil, identity))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTokenByID_MethodNotAllowed(t *testing.T) {
	gw := newTestGateway(t)
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleTokenByID(rec, authedRequest(http.MethodGet, "/api/tokens/some-id", nil, identity))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleServiceToken_MintsAndReuses(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleServiceToken(rec, authedRequest(http.MethodPost, "/api/service-token", nil, identity))
	require.Equal(t, http.StatusOK, rec.Code)
	var first ServiceTokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&first))
	require.True(t, token.ValidFormat(first.Secret))

	rec = httptest.NewRecorder()
	gw.handleServiceToken(rec, authedRequest(http.MethodPost, "/api/service-token", nil, identity))
	require.Equal(t, http.StatusOK, rec.Code)
	var second ServiceTokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&second))

	assert.Equal(t, first.Secret, second.Secret)
}

func TestHandleServiceToken_RevokeReportsCount(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleServiceToken(rec, authedRequest(http.MethodPost, "/api/service-token", nil, identity))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	gw.handleServiceToken(rec, authedRequest(http.MethodDelete, "/api/service-token", nil, identity))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp RevokeServiceTokensResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Revoked)

	// Nothing left to revoke.
	rec = httptest.NewRecorder()
	gw.handleServiceToken(rec, authedRequest(http.MethodDelete, "/api/service-token", nil, identity))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 0, resp.Revoked)
}

func TestHandleServiceToken_NotConfigured(t *testing.T) {
	gw := newTestGatewayNoKey(t)
	seedOwner(t, gw, "owner-1", "Ada")
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleServiceToken(rec, authedRequest(http.MethodPost, "/api/service-token", nil, identity))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "service tokens not configured", errResp["error"])
}

func TestHandleListTools_BridgeDisabled(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleListTools(rec, authedRequest(http.MethodGet, "/api/tools", nil, identity))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []ToolResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp)
}

func TestHandleListTools_SortedCatalog(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	gw.bridge = &stubBridge{tools: map[string]bridge.Tool{
		"zip": {Name: "zip", Description: "compress things"},
		"ack": {Name: "ack", Description: "search things", InputSchema: json.RawMessage(`{"type":"object"}`)},
	}}
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleListTools(rec, authedRequest(http.MethodGet, "/api/tools", nil, identity))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []ToolResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	require.Len(t, resp, 2)
	assert.Equal(t, "ack", resp[0].Name)
	assert.Equal(t, "zip", resp[1].Name)
	assert.Equal(t, "search things", resp[0].Description)
	assert.JSONEq(t, `{"type":"object"}`, string(resp[0].InputSchema))
}

func TestHandleListTools_RefreshClearsCache(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	stub := &stubBridge{}
	gw.bridge = stub
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleListTools(rec, authedRequest(http.MethodGet, "/api/tools", nil, identity))
	assert.Equal(t, 0, stub.clearCalls)

	rec = httptest.NewRecorder()
	gw.handleListTools(rec, authedRequest(http.MethodGet, "/api/tools?refresh=true", nil, identity))
	assert.Equal(t, 1, stub.clearCalls)
}

func TestHandleListTools_UsesServiceTokenCredential(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	stub := &stubBridge{}
	gw.bridge = stub
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleListTools(rec, authedRequest(http.MethodGet, "/api/tools", nil, identity))
	require.Equal(t, http.StatusOK, rec.Code)

	// The credential handed to the bridge is the owner's service token.
	expected, err := gw.tokens.GetOrCreateServiceToken(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, stub.credentials, 1)
	assert.Equal(t, expected, stub.credentials[0])
}

func TestHandleListTools_NoServiceTokenFallsBack(t *testing.T) {
	gw := newTestGatewayNoKey(t)
	seedOwner(t, gw, "owner-1", "Ada")
	stub := &stubBridge{}
	gw.bridge = stub
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleListTools(rec, authedRequest(http.MethodGet, "/api/tools", nil, identity))
	require.Equal(t, http.StatusOK, rec.Code)

	// Without a service token the bridge decides: default credential or none.
	require.Len(t, stub.credentials, 1)
	assert.Empty(t, stub.credentials[0])
}

func TestHandleCallTool(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")

	var gotArgs map[string]any
	gw.bridge = &stubBridge{tools: map[string]bridge.Tool{
		"echo": {
			Name: "echo",
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				gotArgs = args
				return "hello back", nil
			},
		},
	}}
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	body := jsonBody(t, CallToolRequest{Arguments: map[string]any{"text": "hello"}})
	rec := httptest.NewRecorder()
	gw.handleCallTool(rec, authedRequest(http.MethodPost, "/api/tools/echo", body, identity))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp CallToolResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "hello back", resp.Output)
	assert.Equal(t, map[string]any{"text": "hello"}, gotArgs)
}

func TestHandleCallTool_EmptyBody(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	gw.bridge = &stubBridge{tools: map[string]bridge.Tool{
		"ping": {
			Name: "ping",
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				return "pong", nil
			},
		},
	}}
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleCallTool(rec, authedRequest(http.MethodPost, "/api/tools/ping", nil, identity))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp CallToolResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "pong", resp.Output)
}

func TestHandleCallTool_UnknownTool(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	gw.bridge = &stubBridge{}
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleCallTool(rec, authedRequest(http.MethodPost, "/api/tools/nope", nil, identity))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "no tool named 'nope'", errResp["error"])
}

func TestHandleCallTool_BridgeDisabled(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleCallTool(rec, authedRequest(http.MethodPost, "/api/tools/anything", nil, identity))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCallTool_ToolFailure(t *testing.T) {
	gw := newTestGateway(t)
	seedOwner(t, gw, "owner-1", "Ada")
	gw.bridge = &stubBridge{tools: map[string]bridge.Tool{
		"broken": {
			Name: "broken",
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				return "", errors.New("tool broken failed: the gears jammed")
			},
		},
	}}
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleCallTool(rec, authedRequest(http.MethodPost, "/api/tools/broken", nil, identity))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Contains(t, errResp["error"], "the gears jammed")
}

func TestHandleCallTool_InvalidJSON(t *testing.T) {
	gw := newTestGateway(t)
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleCallTool(rec, authedRequest(http.MethodPost, "/api/tools/echo", strings.NewReader("not json"), identity))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCallTool_MissingName(t *testing.T) {
	gw := newTestGateway(t)
	identity := &auth.Identity{OwnerID: "owner-1", TokenID: "token-1"}

	rec := httptest.NewRecorder()
	gw.handleCallTool(rec, authedRequest(http.MethodPost, "/api/tools/", nil, identity))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
