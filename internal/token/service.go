// ABOUTME: Personal access token lifecycle: create, validate, revoke, list
// ABOUTME: Validation collapses every failure mode into a single no-match sentinel

package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/sigil/internal/store"
)

// DefaultTTL is the token lifetime the admin surface uses when none is given: 30 days.
const DefaultTTL = 30 * 24 * time.Hour

// MaxTTL is the longest permitted token lifetime: 365 days.
const MaxTTL = 365 * 24 * time.Hour

// ErrNoMatch is returned for every validation failure. Callers cannot tell
// a malformed secret from an unknown or expired one.
var ErrNoMatch = errors.New("no matching token")

// Service manages the access token lifecycle on top of a TokenStore.
type Service struct {
	store  store.TokenStore
	box    SecretBox
	logger *slog.Logger
	now    func() time.Time
}

// SecretBox seals and opens service-token secrets for storage.
type SecretBox interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// NewService creates a token service. The box is only exercised by the
// service-token flow and may be nil for personal-token-only callers.
func NewService(ts store.TokenStore, box SecretBox, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  ts,
		box:    box,
		logger: logger.With("component", "token"),
		now:    time.Now,
	}
}

// CreatedToken carries the raw secret out of Create. The secret exists
// nowhere else; after this value is dropped only the digest remains.
type CreatedToken struct {
	Secret string
	Token  store.TokenMetadata
}

// Create mints a new personal access token for the owner. ttl == 0 means the
// token never expires; a ttl beyond MaxTTL is rejected. The returned
// CreatedToken is the only time the raw secret is available.
func (s *Service) Create(ctx context.Context, ownerID, name string, ttl time.Duration) (*CreatedToken, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner ID required")
	}
	if name == "" {
		return nil, fmt.Errorf("token name required")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("ttl cannot be negative")
	}
	if ttl > MaxTTL {
		return nil, fmt.Errorf("ttl exceeds maximum of %d days", int(MaxTTL.Hours()/24))
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}

	now := s.now().UTC()
	tok := &store.AccessToken{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Name:         name,
		SecretDigest: Digest(secret),
		SecretPrefix: DisplayPrefix(secret),
		CreatedAt:    now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		tok.ExpiresAt = &expires
	}

	if err := s.store.InsertToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}

	s.logger.Info("created token",
		"id", tok.ID,
		"owner_id", ownerID,
		"name", name,
		"prefix", tok.SecretPrefix)

	return &CreatedToken{
		Secret: secret,
		Token: store.TokenMetadata{
			ID:           tok.ID,
			OwnerID:      tok.OwnerID,
			Name:         tok.Name,
			SecretPrefix: tok.SecretPrefix,
			CreatedAt:    tok.CreatedAt,
			ExpiresAt:    tok.ExpiresAt,
		},
	}, nil
}

// Validate checks a presented secret. Malformed input, unknown digests,
// storage faults, and expired tokens all collapse to ErrNoMatch. On success
// the last-used stamp is written after the result is already decided; a
// failed stamp is logged and never invalidates the match.
func (s *Service) Validate(ctx context.Context, presented string) (*store.AccessToken, error) {
	if !ValidFormat(presented) {
		return nil, ErrNoMatch
	}

	tok, err := s.store.FindTokenByDigest(ctx, Digest(presented))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("token lookup failed", "error", err)
		}
		return nil, ErrNoMatch
	}

	if tok.Expired(s.now()) {
		return nil, ErrNoMatch
	}

	if err := s.store.TouchTokenLastUsed(ctx, tok.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to stamp last_used_at", "id", tok.ID, "error", err)
	}

	return tok, nil
}

// Revoke deletes a token scoped to its owner. A miss (unknown ID, or a token
// belonging to someone else) reports false without error.
func (s *Service) Revoke(ctx context.Context, tokenID, ownerID string) (bool, error) {
	deleted, err := s.store.DeleteToken(ctx, tokenID, ownerID)
	if err != nil {
		return false, fmt.Errorf("revoking token: %w", err)
	}
	if deleted {
		s.logger.Info("revoked token", "id", tokenID, "owner_id", ownerID)
	}
	return deleted, nil
}

// List returns the owner's token metadata, newest first. The projection
// carries no digest and no encrypted secret.
func (s *Service) List(ctx context.Context, ownerID string) ([]store.TokenMetadata, error) {
	tokens, err := s.store.ListTokensByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	return tokens, nil
}
