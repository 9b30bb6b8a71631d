// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject storage failures

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing. Per-method
// error overrides let tests exercise storage failure paths; a non-nil
// override forces that method to return the error without touching state.
type MockStore struct {
	mu     sync.RWMutex
	owners map[string]*Owner
	tokens map[string]*AccessToken // keyed by token ID
	calls  map[string]int
	nextID int

	InsertTokenErr       error
	FindTokenByDigestErr error
	FindServiceTokenErr  error
	TouchErr             error
	DeleteTokenErr       error
	DeleteTokensErr      error
	ListTokensErr        error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		owners: make(map[string]*Owner),
		tokens: make(map[string]*AccessToken),
		calls:  make(map[string]int),
	}
}

// CallCount reports how many times the named method has been invoked.
func (m *MockStore) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

func (m *MockStore) record(method string) {
	m.calls[method]++
}

// InsertToken stores a new token, assigning an ID if none is set.
func (m *MockStore) InsertToken(ctx context.Context, token *AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("InsertToken")

	if m.InsertTokenErr != nil {
		return m.InsertTokenErr
	}

	for _, existing := range m.tokens {
		if existing.SecretDigest == token.SecretDigest {
			return ErrDuplicateToken
		}
	}

	if token.ID == "" {
		m.nextID++
		token.ID = fmt.Sprintf("token-%d", m.nextID)
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	// Make a copy to avoid external modification
	t := *token
	m.tokens[t.ID] = &t
	return nil
}

// FindTokenByDigest retrieves a token by its secret digest.
func (m *MockStore) FindTokenByDigest(ctx context.Context, digest string) (*AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("FindTokenByDigest")

	if m.FindTokenByDigestErr != nil {
		return nil, m.FindTokenByDigestErr
	}

	for _, tok := range m.tokens {
		if tok.SecretDigest == digest {
			result := *tok
			return &result, nil
		}
	}
	return nil, ErrNotFound
}

// FindServiceToken retrieves the newest unexpired token with the given name.
func (m *MockStore) FindServiceToken(ctx context.Context, ownerID, name string, now time.Time) (*AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("FindServiceToken")

	if m.FindServiceTokenErr != nil {
		return nil, m.FindServiceTokenErr
	}

	var newest *AccessToken
	for _, tok := range m.tokens {
		if tok.OwnerID != ownerID || tok.Name != name || tok.Expired(now) {
			continue
		}
		if newest == nil || tok.CreatedAt.After(newest.CreatedAt) {
			newest = tok
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	result := *newest
	return &result, nil
}

// TouchTokenLastUsed stamps the token's last-used timestamp.
func (m *MockStore) TouchTokenLastUsed(ctx context.Context, id string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("TouchTokenLastUsed")

	if m.TouchErr != nil {
		return m.TouchErr
	}

	tok, ok := m.tokens[id]
	if !ok {
		return ErrNotFound
	}
	stamped := when
	tok.LastUsedAt = &stamped
	return nil
}

// DeleteToken removes a token scoped to its owner.
func (m *MockStore) DeleteToken(ctx context.Context, id, ownerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteToken")

	if m.DeleteTokenErr != nil {
		return false, m.DeleteTokenErr
	}

	tok, ok := m.tokens[id]
	if !ok || tok.OwnerID != ownerID {
		return false, nil
	}
	delete(m.tokens, id)
	return true, nil
}

// DeleteTokens removes all tokens matching the filter.
func (m *MockStore) DeleteTokens(ctx context.Context, filter TokenFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteTokens")

	if m.DeleteTokensErr != nil {
		return 0, m.DeleteTokensErr
	}

	if filter.OwnerID == "" && filter.Name == "" && filter.ExpiredBefore == nil {
		return 0, fmt.Errorf("empty token filter")
	}

	var deleted int64
	for id, tok := range m.tokens {
		if filter.OwnerID != "" && tok.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Name != "" && tok.Name != filter.Name {
			continue
		}
		if filter.ExpiredBefore != nil {
			if tok.ExpiresAt == nil || !tok.ExpiresAt.Before(*filter.ExpiredBefore) {
				continue
			}
		}
		delete(m.tokens, id)
		deleted++
	}
	return deleted, nil
}

// ListTokensByOwner returns metadata for the owner's tokens, newest first.
func (m *MockStore) ListTokensByOwner(ctx context.Context, ownerID string) ([]TokenMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListTokensByOwner")

	if m.ListTokensErr != nil {
		return nil, m.ListTokensErr
	}

	var tokens []TokenMetadata
	for _, tok := range m.tokens {
		if tok.OwnerID != ownerID {
			continue
		}
		tokens = append(tokens, TokenMetadata{
			ID:           tok.ID,
			OwnerID:      tok.OwnerID,
			Name:         tok.Name,
			SecretPrefix: tok.SecretPrefix,
			CreatedAt:    tok.CreatedAt,
			ExpiresAt:    tok.ExpiresAt,
			LastUsedAt:   tok.LastUsedAt,
		})
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
	})
	return tokens, nil
}

// CreateOwner stores a new owner, assigning an ID if none is set.
func (m *MockStore) CreateOwner(ctx context.Context, owner *Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateOwner")

	if owner.ID == "" {
		m.nextID++
		owner.ID = fmt.Sprintf("owner-%d", m.nextID)
	}
	if _, exists := m.owners[owner.ID]; exists {
		return ErrDuplicateOwner
	}
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = time.Now().UTC()
	}

	o := *owner
	m.owners[o.ID] = &o
	return nil
}

// GetOwner retrieves an owner by ID.
func (m *MockStore) GetOwner(ctx context.Context, id string) (*Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetOwner")

	o, ok := m.owners[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *o
	return &result, nil
}

// DeleteOwner removes an owner and all of the owner's tokens.
func (m *MockStore) DeleteOwner(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteOwner")

	if _, ok := m.owners[id]; !ok {
		return ErrNotFound
	}
	delete(m.owners, id)
	for tokID, tok := range m.tokens {
		if tok.OwnerID == id {
			delete(m.tokens, tokID)
		}
	}
	return nil
}

// CountOwners returns the number of owners.
func (m *MockStore) CountOwners(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.owners), nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements the Store interface.
var _ Store = (*MockStore)(nil)
