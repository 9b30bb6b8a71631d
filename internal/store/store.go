// ABOUTME: Store interfaces and data types for sigil persistence
// ABOUTME: Defines Owner, AccessToken structs and the TokenStore/OwnerStore interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateToken is returned when inserting a token whose digest already exists
var ErrDuplicateToken = errors.New("token already exists")

// ErrDuplicateOwner is returned when creating an owner that already exists
var ErrDuplicateOwner = errors.New("owner already exists")

// Owner represents a principal that access tokens belong to
type Owner struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// AccessToken is a stored bearer credential. The plaintext secret is never
// persisted; only its SHA-256 digest and a short display prefix are kept.
// EncryptedSecret is set only for service tokens, which the gateway has to
// replay against the tool bridge and therefore stores in recoverable form.
type AccessToken struct {
	ID              string
	OwnerID         string
	Name            string
	SecretDigest    string  `json:"-"`
	SecretPrefix    string
	EncryptedSecret *string `json:"-"` // nil for personal access tokens
	CreatedAt       time.Time
	ExpiresAt       *time.Time // nil = never expires
	LastUsedAt      *time.Time
}

// Expired reports whether the token's expiry is at or before now.
func (t *AccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// TokenMetadata is the listing projection of an AccessToken. It carries no
// digest and no encrypted secret, so listings cannot leak credential material.
type TokenMetadata struct {
	ID           string
	OwnerID      string
	Name         string
	SecretPrefix string
	CreatedAt    time.Time
	ExpiresAt    *time.Time
	LastUsedAt   *time.Time
}

// TokenFilter selects tokens for bulk deletion. Zero-value fields are
// ignored; at least one field must be set.
type TokenFilter struct {
	OwnerID       string
	Name          string
	ExpiredBefore *time.Time // matches tokens whose expiry is strictly before this instant
}

// TokenStore defines persistence for access tokens
type TokenStore interface {
	// InsertToken stores a new token row. Returns ErrDuplicateToken if a
	// token with the same digest already exists.
	InsertToken(ctx context.Context, token *AccessToken) error

	// FindTokenByDigest returns the token whose secret digest matches exactly.
	// Returns ErrNotFound if no row matches.
	FindTokenByDigest(ctx context.Context, digest string) (*AccessToken, error)

	// FindServiceToken returns the newest token for the owner with the given
	// name that has not expired as of now. Returns ErrNotFound if none exists.
	FindServiceToken(ctx context.Context, ownerID, name string, now time.Time) (*AccessToken, error)

	// TouchTokenLastUsed stamps the token's last_used_at column.
	// Returns ErrNotFound if the token does not exist.
	TouchTokenLastUsed(ctx context.Context, id string, when time.Time) error

	// DeleteToken removes the token with the given ID, scoped to its owner.
	// Reports whether a row was actually deleted.
	DeleteToken(ctx context.Context, id, ownerID string) (bool, error)

	// DeleteTokens removes all tokens matching the filter and returns the
	// number of rows deleted. An empty filter is an error.
	DeleteTokens(ctx context.Context, filter TokenFilter) (int64, error)

	// ListTokensByOwner returns metadata for all of an owner's tokens,
	// newest first.
	ListTokensByOwner(ctx context.Context, ownerID string) ([]TokenMetadata, error)
}

// OwnerStore defines persistence for owners
type OwnerStore interface {
	// CreateOwner inserts a new owner. Returns ErrDuplicateOwner if the ID
	// is already taken.
	CreateOwner(ctx context.Context, owner *Owner) error

	// GetOwner retrieves an owner by ID. Returns ErrNotFound if absent.
	GetOwner(ctx context.Context, id string) (*Owner, error)

	// DeleteOwner removes an owner and, via cascade, all of its tokens.
	DeleteOwner(ctx context.Context, id string) error

	// CountOwners returns the total number of owners.
	CountOwners(ctx context.Context) (int, error)
}

// Store combines all persistence concerns behind a single handle
type Store interface {
	TokenStore
	OwnerStore

	// Close releases any resources held by the store
	Close() error
}
