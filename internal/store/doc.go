// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with two
// specialized interfaces:
//
//   - TokenStore: Access token persistence (digest lookup, owner-scoped
//     deletion, bulk filtered deletion, metadata listing)
//   - OwnerStore: Owner persistence with cascade deletion of tokens
//
// SQLiteStore implements both interfaces in a single struct; Store combines
// them with Close for callers that hold the full handle.
//
// # Data Models
//
//   - Owner: Principal that tokens belong to
//   - AccessToken: Bearer credential storing a SHA-256 digest, never the
//     plaintext secret. Service tokens additionally carry an encrypted copy
//     so the gateway can replay them against the tool bridge.
//   - TokenMetadata: Listing projection with no digest and no encrypted
//     secret, so listings cannot leak credential material
//   - TokenFilter: Bulk deletion selector (owner, name, expiry horizon)
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDuplicateToken: Token digest already exists
//   - ErrDuplicateOwner: Owner ID already taken
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests:
//
//	store := store.NewMockStore()
//	// store implements the Store interface
//
// Use NewSQLiteStore with a temp path for integration tests with real SQLite.
package store
