// ABOUTME: HTTP client for the sigil gateway API used by the CLI binaries
// ABOUTME: Wraps bearer auth, JSON encoding, and the uniform error body

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Token is the metadata projection of an access token. The gateway never
// returns the secret or its digest here.
type Token struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Prefix     string `json:"prefix"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	LastUsedAt string `json:"last_used_at,omitempty"`
}

// CreatedToken pairs new token metadata with its raw secret. The secret is
// returned exactly once; save it before discarding the response.
type CreatedToken struct {
	Token  Token  `json:"token"`
	Secret string `json:"secret"`
}

// Identity describes the authenticated caller.
type Identity struct {
	OwnerID     string `json:"owner_id"`
	DisplayName string `json:"display_name,omitempty"`
	TokenID     string `json:"token_id"`
}

// Owner is a token-owning principal.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

// CreatedOwner pairs a new owner with its bootstrap token and secret.
type CreatedOwner struct {
	Owner  Owner  `json:"owner"`
	Token  Token  `json:"token"`
	Secret string `json:"secret"`
}

// Tool is one entry of the gateway's bridge tool catalog.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

// Client calls the gateway HTTP API with bearer-token authentication.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the gateway at baseURL authenticating with token.
// An empty token is allowed; authenticated endpoints will return 401.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Me returns the caller's identity.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// CreateOwner registers a new owner and returns it with its bootstrap token.
// An empty id lets the gateway generate one.
func (c *Client) CreateOwner(ctx context.Context, id, displayName string) (*CreatedOwner, error) {
	req := map[string]string{"display_name": displayName}
	if id != "" {
		req["id"] = id
	}
	var created CreatedOwner
	if err := c.do(ctx, http.MethodPost, "/api/owners", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateToken mints a new access token for the caller. A nil ttlDays uses
// the gateway default of 30 days; zero means the token never expires.
func (c *Client) CreateToken(ctx context.Context, name string, ttlDays *int) (*CreatedToken, error) {
	req := struct {
		Name    string `json:"name"`
		TTLDays *int   `json:"ttl_days,omitempty"`
	}{Name: name, TTLDays: ttlDays}

	var created CreatedToken
	if err := c.do(ctx, http.MethodPost, "/api/tokens", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListTokens returns the caller's token metadata, newest first.
func (c *Client) ListTokens(ctx context.Context) ([]Token, error) {
	var tokens []Token
	if err := c.do(ctx, http.MethodGet, "/api/tokens", nil, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// RevokeToken revokes one of the caller's tokens by ID. It reports false
// when the ID does not name a token the caller owns.
func (c *Client) RevokeToken(ctx context.Context, id string) (bool, error) {
	var resp struct {
		Revoked bool `json:"revoked"`
	}
	path := "/api/tokens/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Revoked, nil
}

// ServiceToken returns the caller's bridge credential, minting one if needed.
func (c *Client) ServiceToken(ctx context.Context) (string, error) {
	var resp struct {
		Secret string `json:"secret"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/service-token", nil, &resp); err != nil {
		return "", err
	}
	return resp.Secret, nil
}

// RevokeServiceTokens revokes the caller's service tokens and reports how
// many were removed.
func (c *Client) RevokeServiceTokens(ctx context.Context) (int, error) {
	var resp struct {
		Revoked int `json:"revoked"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/service-token", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Revoked, nil
}

// ListTools returns the gateway's tool catalog sorted by name. With refresh
// set the gateway drops its definition cache before listing.
func (c *Client) ListTools(ctx context.Context, refresh bool) ([]Tool, error) {
	path := "/api/tools"
	if refresh {
		path += "?refresh=true"
	}
	var tools []Tool
	if err := c.do(ctx, http.MethodGet, path, nil, &tools); err != nil {
		return nil, err
	}
	return tools, nil
}

// CallTool invokes a named tool and returns its text output. Tool failures
// come back as an *APIError with status 502.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	req := map[string]any{"arguments": args}
	var resp struct {
		Output string `json:"output"`
	}
	path := "/api/tools/" + url.PathEscape(name)
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", err
	}
	return resp.Output, nil
}

// Health checks the gateway's unauthenticated health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// do performs one API request. A nil body sends no payload; a nil out
// discards the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// apiError extracts the gateway's {"error": ...} body from a failed response.
func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}
	return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
}
