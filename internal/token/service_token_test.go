// ABOUTME: Tests for service-token issuance and revocation
// ABOUTME: Covers idempotent reuse, reissue on decrypt failure, swallowed bulk-delete errors

package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/sigil/internal/crypt"
	"github.com/2389/sigil/internal/store"
)

func TestGetOrCreateServiceToken_MintsOnce(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	first, err := svc.GetOrCreateServiceToken(ctx, "owner-1")
	require.NoError(t, err)
	assert.True(t, ValidFormat(first))

	// One read, one write, no more
	assert.Equal(t, 1, mock.CallCount("FindServiceToken"))
	assert.Equal(t, 1, mock.CallCount("InsertToken"))

	second, err := svc.GetOrCreateServiceToken(ctx, "owner-1")
	require.NoError(t, err)

	// The second call decrypts and returns the same secret without writing
	assert.Equal(t, first, second)
	assert.Equal(t, 2, mock.CallCount("FindServiceToken"))
	assert.Equal(t, 1, mock.CallCount("InsertToken"))
}

func TestGetOrCreateServiceToken_MintedTokenValidates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	secret, err := svc.GetOrCreateServiceToken(ctx, "owner-1")
	require.NoError(t, err)

	tok, err := svc.Validate(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", tok.OwnerID)
	assert.Equal(t, ServiceTokenName, tok.Name)
	require.NotNil(t, tok.ExpiresAt)

	// Expiry sits at the 90-day window
	window := time.Until(*tok.ExpiresAt)
	assert.InDelta(t, ServiceTokenTTL.Hours(), window.Hours(), 1)
}

func TestGetOrCreateServiceToken_ReissuesAfterKeyRotation(t *testing.T) {
	mock := store.NewMockStore()

	keyA, err := crypt.GenerateKey()
	require.NoError(t, err)
	boxA, err := crypt.NewBox(keyA)
	require.NoError(t, err)

	svcA := NewService(mock, boxA, nil)
	ctx := context.Background()

	first, err := svcA.GetOrCreateServiceToken(ctx, "owner-1")
	require.NoError(t, err)

	// Rotate the encryption key: the stored ciphertext no longer decrypts
	keyB, err := crypt.GenerateKey()
	require.NoError(t, err)
	boxB, err := crypt.NewBox(keyB)
	require.NoError(t, err)

	svcB := NewService(mock, boxB, nil)
	second, err := svcB.GetOrCreateServiceToken(ctx, "owner-1")
	require.NoError(t, err)

	// The decrypt failure never surfaced; a fresh token was issued
	assert.NotEqual(t, first, second)
	assert.True(t, ValidFormat(second))
}

func TestGetOrCreateServiceToken_ReissuesAfterExpiry(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	first, err := svc.GetOrCreateServiceToken(ctx, "owner-1")
	require.NoError(t, err)

	// Jump past the 90-day window; the stored row no longer qualifies
	svc.now = func() time.Time { return time.Now().Add(ServiceTokenTTL + time.Hour) }

	second, err := svc.GetOrCreateServiceToken(ctx, "owner-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, mock.CallCount("InsertToken"))
}

func TestGetOrCreateServiceToken_ChangesAfterRevoke(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.GetOrCreateServiceToken(ctx, "owner-1")
	require.NoError(t, err)

	count := svc.RevokeServiceTokens(ctx, "owner-1")
	assert.Equal(t, 1, count)

	// The revoked secret no longer validates
	_, err = svc.Validate(ctx, first)
	assert.ErrorIs(t, err, ErrNoMatch)

	second, err := svc.GetOrCreateServiceToken(ctx, "owner-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestGetOrCreateServiceToken_RequiresBox(t *testing.T) {
	svc := NewService(store.NewMockStore(), nil, nil)

	_, err := svc.GetOrCreateServiceToken(context.Background(), "owner-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGetOrCreateServiceToken_LeavesPersonalTokensAlone(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pat, err := svc.Create(ctx, "owner-1", "personal", 0)
	require.NoError(t, err)

	_, err = svc.GetOrCreateServiceToken(ctx, "owner-1")
	require.NoError(t, err)

	count := svc.RevokeServiceTokens(ctx, "owner-1")
	assert.Equal(t, 1, count)

	// The personal token survives a service-token revocation
	_, err = svc.Validate(ctx, pat.Secret)
	require.NoError(t, err)
}

func TestRevokeServiceTokens_SwallowsStorageErrors(t *testing.T) {
	svc, mock := newTestService(t)
	mock.DeleteTokensErr = errors.New("disk detached")

	count := svc.RevokeServiceTokens(context.Background(), "owner-1")
	assert.Equal(t, 0, count)
}

func TestRevokeServiceTokens_NothingToRevoke(t *testing.T) {
	svc, _ := newTestService(t)

	count := svc.RevokeServiceTokens(context.Background(), "owner-1")
	assert.Equal(t, 0, count)
}

func TestCleanupExpired(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreateServiceToken(ctx, "owner-1")
	require.NoError(t, err)
	_, err = svc.GetOrCreateServiceToken(ctx, "owner-2")
	require.NoError(t, err)

	// A non-expiring personal token must never match the sweep
	_, err = svc.Create(ctx, "owner-1", "keeper", 0)
	require.NoError(t, err)

	// Nothing has expired yet
	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	// Both service tokens age out past the window
	svc.now = func() time.Time { return time.Now().Add(ServiceTokenTTL + time.Hour) }

	removed, err = svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	tokens, err := svc.List(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "keeper", tokens[0].Name)
}
