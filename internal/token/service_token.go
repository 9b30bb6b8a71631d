// ABOUTME: Service-token issuance for the tool bridge: idempotent reuse with reissue on decrypt failure
// ABOUTME: Bulk revocation swallows storage errors and reports zero removed

package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389/sigil/internal/store"
)

// ServiceTokenName is the distinguished row name for bridge service tokens.
const ServiceTokenName = "mcp-service-token"

// ServiceTokenTTL is the validity window for minted service tokens: 90 days.
const ServiceTokenTTL = 90 * 24 * time.Hour

// ErrNotConfigured is returned when service tokens are requested but no
// secret box was configured at startup.
var ErrNotConfigured = errors.New("service tokens not configured")

// GetOrCreateServiceToken returns the owner's bridge credential. An existing
// unexpired row whose encrypted secret still decrypts is reused; absence,
// an unreadable row, or any decrypt failure leads to a fresh token. Decrypt
// failures are logged and never surface. The flow is at most one read plus
// one write with no transaction, so two concurrent callers may each mint a
// row; both results validate by digest.
func (s *Service) GetOrCreateServiceToken(ctx context.Context, ownerID string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("owner ID required")
	}
	if s.box == nil {
		return "", ErrNotConfigured
	}

	now := s.now().UTC()

	existing, err := s.store.FindServiceToken(ctx, ownerID, ServiceTokenName, now)
	switch {
	case err == nil && existing.EncryptedSecret != nil:
		secret, derr := s.box.Decrypt(*existing.EncryptedSecret)
		if derr == nil {
			return secret, nil
		}
		s.logger.Warn("service token no longer decrypts, reissuing",
			"id", existing.ID, "owner_id", ownerID, "error", derr)
	case err == nil:
		s.logger.Warn("service token row has no encrypted secret, reissuing",
			"id", existing.ID, "owner_id", ownerID)
	case !errors.Is(err, store.ErrNotFound):
		s.logger.Warn("service token lookup failed, reissuing",
			"owner_id", ownerID, "error", err)
	}

	secret, err := GenerateSecret()
	if err != nil {
		return "", fmt.Errorf("generating service token: %w", err)
	}
	encrypted, err := s.box.Encrypt(secret)
	if err != nil {
		return "", fmt.Errorf("encrypting service token: %w", err)
	}

	expires := now.Add(ServiceTokenTTL)
	tok := &store.AccessToken{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		Name:            ServiceTokenName,
		SecretDigest:    Digest(secret),
		SecretPrefix:    DisplayPrefix(secret),
		EncryptedSecret: &encrypted,
		CreatedAt:       now,
		ExpiresAt:       &expires,
	}
	if err := s.store.InsertToken(ctx, tok); err != nil {
		return "", fmt.Errorf("storing service token: %w", err)
	}

	s.logger.Info("issued service token",
		"id", tok.ID,
		"owner_id", ownerID,
		"expires_at", expires.Format("2006-01-02"))

	return secret, nil
}

// RevokeServiceTokens deletes every service-token row for the owner and
// reports how many were removed. Storage failures are logged and reported
// as zero removed; revocation is best-effort by contract.
func (s *Service) RevokeServiceTokens(ctx context.Context, ownerID string) int {
	count, err := s.store.DeleteTokens(ctx, store.TokenFilter{
		OwnerID: ownerID,
		Name:    ServiceTokenName,
	})
	if err != nil {
		s.logger.Error("failed to revoke service tokens", "owner_id", ownerID, "error", err)
		return 0
	}
	if count > 0 {
		s.logger.Info("revoked service tokens", "owner_id", ownerID, "count", count)
	}
	return int(count)
}

// CleanupExpired removes service-token rows across all owners whose expiry
// has passed. The gateway cleanup command runs this on an external schedule.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	count, err := s.store.DeleteTokens(ctx, store.TokenFilter{
		Name:          ServiceTokenName,
		ExpiredBefore: &now,
	})
	if err != nil {
		return 0, fmt.Errorf("cleaning up expired service tokens: %w", err)
	}
	if count > 0 {
		s.logger.Info("cleaned up expired service tokens", "count", count)
	}
	return count, nil
}
