// ABOUTME: HTTP API handlers for token lifecycle, owners, and bridge tools
// ABOUTME: JSON request/response types with uniform error bodies

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/sigil/internal/auth"
	"github.com/2389/sigil/internal/bridge"
	"github.com/2389/sigil/internal/store"
	"github.com/2389/sigil/internal/token"
)

// TokenResponse is the JSON projection of token metadata. It never carries
// the secret or its digest.
type TokenResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Prefix     string `json:"prefix"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	LastUsedAt string `json:"last_used_at,omitempty"`
}

// CreateTokenRequest is the JSON body for POST /api/tokens.
type CreateTokenRequest struct {
	Name    string `json:"name"`
	TTLDays *int   `json:"ttl_days,omitempty"` // omitted = 30 days, 0 = never expires
}

// CreateTokenResponse carries the raw secret. It is shown exactly once;
// afterwards only the digest exists server-side.
type CreateTokenResponse struct {
	Token  TokenResponse `json:"token"`
	Secret string        `json:"secret"`
}

// RevokeTokenResponse is the JSON response for DELETE /api/tokens/{id}.
type RevokeTokenResponse struct {
	Revoked bool `json:"revoked"`
}

// ServiceTokenResponse carries the caller's bridge credential.
type ServiceTokenResponse struct {
	Secret string `json:"secret"`
}

// RevokeServiceTokensResponse reports how many service-token rows were removed.
type RevokeServiceTokensResponse struct {
	Revoked int `json:"revoked"`
}

// MeResponse describes the authenticated caller.
type MeResponse struct {
	OwnerID     string `json:"owner_id"`
	DisplayName string `json:"display_name,omitempty"`
	TokenID     string `json:"token_id"`
}

// CreateOwnerRequest is the JSON body for POST /api/owners.
type CreateOwnerRequest struct {
	ID          string `json:"id,omitempty"` // generated when empty
	DisplayName string `json:"display_name"`
}

// OwnerResponse is the JSON projection of an owner.
type OwnerResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

// CreateOwnerResponse returns the new owner together with its bootstrap
// token so the owner can authenticate without operator access to the store.
type CreateOwnerResponse struct {
	Owner  OwnerResponse `json:"owner"`
	Token  TokenResponse `json:"token"`
	Secret string        `json:"secret"`
}

// ToolResponse is one entry of the bridge tool catalog.
type ToolResponse struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// CallToolRequest is the JSON body for POST /api/tools/{name}. An empty body
// means no arguments.
type CallToolRequest struct {
	Arguments map[string]any `json:"arguments"`
}

// CallToolResponse carries the concatenated text output of a tool call.
type CallToolResponse struct {
	Output string `json:"output"`
}

// handleMe handles GET /api/me requests.
// It returns the authenticated caller's owner record and token ID.
func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := auth.MustFromContext(r.Context())
	resp := MeResponse{OwnerID: id.OwnerID, TokenID: id.TokenID}

	owner, err := g.store.GetOwner(r.Context(), id.OwnerID)
	switch {
	case err == nil:
		resp.DisplayName = owner.DisplayName
	case !errors.Is(err, store.ErrNotFound):
		g.logger.Error("owner lookup failed", "owner_id", id.OwnerID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleOwners handles POST /api/owners requests.
// It creates an owner and mints its first token in one step, so new owners
// never need direct store access to get started.
func (g *Gateway) handleOwners(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req CreateOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DisplayName == "" {
		g.sendJSONError(w, http.StatusBadRequest, "display_name is required")
		return
	}

	owner := &store.Owner{
		ID:          req.ID,
		DisplayName: req.DisplayName,
		CreatedAt:   time.Now().UTC(),
	}
	if owner.ID == "" {
		owner.ID = uuid.New().String()
	}

	if err := g.store.CreateOwner(r.Context(), owner); err != nil {
		if errors.Is(err, store.ErrDuplicateOwner) {
			g.sendJSONError(w, http.StatusConflict, "owner already exists")
			return
		}
		g.logger.Error("creating owner failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	created, err := g.tokens.Create(r.Context(), owner.ID, "bootstrap", token.DefaultTTL)
	if err != nil {
		g.logger.Error("creating bootstrap token failed", "owner_id", owner.ID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateOwnerResponse{
		Owner: OwnerResponse{
			ID:          owner.ID,
			DisplayName: owner.DisplayName,
			CreatedAt:   owner.CreatedAt.Format(time.RFC3339),
		},
		Token:  tokenResponse(created.Token),
		Secret: created.Secret,
	})
}

// handleTokens dispatches /api/tokens requests by method.
func (g *Gateway) handleTokens(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleListTokens(w, r)
	case http.MethodPost:
		g.handleCreateToken(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleListTokens handles GET /api/tokens requests.
// It returns the caller's token metadata, newest first.
func (g *Gateway) handleListTokens(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	tokens, err := g.tokens.List(r.Context(), id.OwnerID)
	if err != nil {
		g.logger.Error("listing tokens failed", "owner_id", id.OwnerID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]TokenResponse, 0, len(tokens))
	for _, t := range tokens {
		resp = append(resp, tokenResponse(t))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleCreateToken handles POST /api/tokens requests.
// The response is the only place the raw secret ever appears.
func (g *Gateway) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		g.sendJSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.TTLDays != nil && *req.TTLDays < 0 {
		g.sendJSONError(w, http.StatusBadRequest, "ttl_days cannot be negative")
		return
	}

	ttl := token.DefaultTTL
	if req.TTLDays != nil {
		ttl = time.Duration(*req.TTLDays) * 24 * time.Hour
	}
	if ttl > token.MaxTTL {
		g.sendJSONError(w, http.StatusBadRequest, "ttl_days exceeds maximum of 365 days")
		return
	}

	created, err := g.tokens.Create(r.Context(), id.OwnerID, req.Name, ttl)
	if err != nil {
		g.logger.Error("creating token failed", "owner_id", id.OwnerID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateTokenResponse{
		Token:  tokenResponse(created.Token),
		Secret: created.Secret,
	})
}

// handleTokenByID handles DELETE /api/tokens/{id} requests.
// Revocation is scoped to the caller; a miss reports revoked=false rather
// than leaking whether the ID exists for someone else.
func (g *Gateway) handleTokenByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tokenID := strings.TrimPrefix(r.URL.Path, "/api/tokens/")
	if tokenID == "" || strings.Contains(tokenID, "/") {
		g.sendJSONError(w, http.StatusBadRequest, "token ID required")
		return
	}

	id := auth.MustFromContext(r.Context())
	revoked, err := g.tokens.Revoke(r.Context(), tokenID, id.OwnerID)
	if err != nil {
		g.logger.Error("revoking token failed", "id", tokenID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RevokeTokenResponse{Revoked: revoked})
}

// handleServiceToken dispatches /api/service-token requests by method.
// POST returns the caller's bridge credential, minting one if needed;
// DELETE revokes all of the caller's service tokens.
func (g *Gateway) handleServiceToken(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	switch r.Method {
	case http.MethodPost:
		secret, err := g.tokens.GetOrCreateServiceToken(r.Context(), id.OwnerID)
		if err != nil {
			if errors.Is(err, token.ErrNotConfigured) {
				g.sendJSONError(w, http.StatusServiceUnavailable, "service tokens not configured")
				return
			}
			g.logger.Error("issuing service token failed", "owner_id", id.OwnerID, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ServiceTokenResponse{Secret: secret})
	case http.MethodDelete:
		count := g.tokens.RevokeServiceTokens(r.Context(), id.OwnerID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RevokeServiceTokensResponse{Revoked: count})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleListTools handles GET /api/tools requests.
// It returns the bridge tool catalog for the caller, sorted by name.
// ?refresh=true drops the definition cache first.
func (g *Gateway) handleListTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Query().Get("refresh") == "true" && g.bridge != nil {
		g.bridge.ClearCache()
	}

	tools := g.callerTools(r)

	resp := make([]ToolResponse, 0, len(tools))
	for _, t := range tools {
		resp = append(resp, ToolResponse{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	sort.Slice(resp, func(i, j int) bool { return resp[i].Name < resp[j].Name })

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleCallTool handles POST /api/tools/{name} requests.
// Tool failures surface as 502 with the bridge's error text; everything the
// tool printed arrives concatenated in the output field.
func (g *Gateway) handleCallTool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/tools/")
	if name == "" || strings.Contains(name, "/") {
		g.sendJSONError(w, http.StatusBadRequest, "tool name required")
		return
	}

	var req CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tools := g.callerTools(r)
	tool, ok := tools[name]
	if !ok {
		g.sendJSONError(w, http.StatusNotFound, fmt.Sprintf("no tool named '%s'", name))
		return
	}

	output, err := tool.Call(r.Context(), req.Arguments)
	if err != nil {
		g.sendJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CallToolResponse{Output: output})
}

// callerTools resolves the caller's tool catalog. The caller's service token
// is the preferred upstream credential; when it cannot be issued the bridge
// falls back to its default credential or an empty catalog.
func (g *Gateway) callerTools(r *http.Request) map[string]bridge.Tool {
	if g.bridge == nil {
		return map[string]bridge.Tool{}
	}

	id := auth.MustFromContext(r.Context())
	credential, err := g.tokens.GetOrCreateServiceToken(r.Context(), id.OwnerID)
	if err != nil {
		if !errors.Is(err, token.ErrNotConfigured) {
			g.logger.Warn("service token unavailable, falling back to default credential",
				"owner_id", id.OwnerID, "error", err)
		}
		credential = ""
	}

	return g.bridge.GetTools(r.Context(), credential)
}

// tokenResponse converts token metadata to its JSON projection.
func tokenResponse(t store.TokenMetadata) TokenResponse {
	resp := TokenResponse{
		ID:        t.ID,
		Name:      t.Name,
		Prefix:    t.SecretPrefix,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
	if t.ExpiresAt != nil {
		resp.ExpiresAt = t.ExpiresAt.Format(time.RFC3339)
	}
	if t.LastUsedAt != nil {
		resp.LastUsedAt = t.LastUsedAt.Format(time.RFC3339)
	}
	return resp
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// toolBridge is the slice of the bridge client the handlers use.
// This allows injecting stub implementations for testing.
type toolBridge interface {
	GetTools(ctx context.Context, credential string) map[string]bridge.Tool
	ClearCache()
}
