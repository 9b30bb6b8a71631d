// ABOUTME: Access token persistence for the SQLite store
// ABOUTME: Implements digest lookup, owner-scoped deletion, and metadata listing

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InsertToken stores a new token row.
// Returns ErrDuplicateToken if a token with the same digest already exists.
func (s *SQLiteStore) InsertToken(ctx context.Context, token *AccessToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO access_tokens (id, owner_id, name, secret_digest, secret_prefix, encrypted_secret, created_at, expires_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		token.ID,
		token.OwnerID,
		token.Name,
		token.SecretDigest,
		token.SecretPrefix,
		nullString(ptrToString(token.EncryptedSecret)),
		token.CreatedAt.UTC().Format(time.RFC3339),
		formatNullTime(token.ExpiresAt),
		formatNullTime(token.LastUsedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateToken
		}
		return fmt.Errorf("inserting token: %w", err)
	}

	s.logger.Debug("inserted token", "id", token.ID, "owner_id", token.OwnerID, "name", token.Name)
	return nil
}

// FindTokenByDigest returns the token whose secret digest matches exactly.
// Returns ErrNotFound if no row matches.
func (s *SQLiteStore) FindTokenByDigest(ctx context.Context, digest string) (*AccessToken, error) {
	query := `
		SELECT id, owner_id, name, secret_digest, secret_prefix, encrypted_secret, created_at, expires_at, last_used_at
		FROM access_tokens
		WHERE secret_digest = ?
	`

	tok, err := scanToken(s.db.QueryRowContext(ctx, query, digest))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying token by digest: %w", err)
	}

	return tok, nil
}

// FindServiceToken returns the newest token for the owner with the given name
// that has not expired as of now. Returns ErrNotFound if none exists.
func (s *SQLiteStore) FindServiceToken(ctx context.Context, ownerID, name string, now time.Time) (*AccessToken, error) {
	query := `
		SELECT id, owner_id, name, secret_digest, secret_prefix, encrypted_secret, created_at, expires_at, last_used_at
		FROM access_tokens
		WHERE owner_id = ? AND name = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at DESC
		LIMIT 1
	`

	tok, err := scanToken(s.db.QueryRowContext(ctx, query, ownerID, name, now.UTC().Format(time.RFC3339)))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying service token: %w", err)
	}

	return tok, nil
}

// TouchTokenLastUsed stamps the token's last_used_at column.
// Returns ErrNotFound if the token does not exist.
func (s *SQLiteStore) TouchTokenLastUsed(ctx context.Context, id string, when time.Time) error {
	query := `UPDATE access_tokens SET last_used_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, when.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating last_used_at: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteToken removes the token with the given ID, scoped to its owner.
// Reports whether a row was actually deleted. A token belonging to a
// different owner is left untouched and reported as not deleted.
func (s *SQLiteStore) DeleteToken(ctx context.Context, id, ownerID string) (bool, error) {
	query := `DELETE FROM access_tokens WHERE id = ? AND owner_id = ?`

	result, err := s.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("deleting token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	s.logger.Debug("deleted token", "id", id, "owner_id", ownerID)
	return true, nil
}

// DeleteTokens removes all tokens matching the filter and returns the number
// of rows deleted. An empty filter is rejected to guard against an unbounded
// delete.
func (s *SQLiteStore) DeleteTokens(ctx context.Context, filter TokenFilter) (int64, error) {
	var conditions []string
	var args []any

	if filter.OwnerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.Name != "" {
		conditions = append(conditions, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.ExpiredBefore != nil {
		conditions = append(conditions, "expires_at IS NOT NULL AND expires_at < ?")
		args = append(args, filter.ExpiredBefore.UTC().Format(time.RFC3339))
	}

	if len(conditions) == 0 {
		return 0, fmt.Errorf("empty token filter")
	}

	query := "DELETE FROM access_tokens WHERE " + strings.Join(conditions, " AND ")

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting tokens: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	if deleted > 0 {
		s.logger.Debug("deleted tokens", "count", deleted, "owner_id", filter.OwnerID, "name", filter.Name)
	}
	return deleted, nil
}

// ListTokensByOwner returns metadata for all of an owner's tokens, newest
// first. The projection never selects the digest or encrypted secret.
func (s *SQLiteStore) ListTokensByOwner(ctx context.Context, ownerID string) ([]TokenMetadata, error) {
	query := `
		SELECT id, owner_id, name, secret_prefix, created_at, expires_at, last_used_at
		FROM access_tokens
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []TokenMetadata
	for rows.Next() {
		var meta TokenMetadata
		var createdAt string
		var expiresAt, lastUsedAt sql.NullString

		if err := rows.Scan(
			&meta.ID,
			&meta.OwnerID,
			&meta.Name,
			&meta.SecretPrefix,
			&createdAt,
			&expiresAt,
			&lastUsedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning token row: %w", err)
		}

		if parsed, err := time.Parse(time.RFC3339, createdAt); err != nil {
			slog.Warn("failed to parse token created_at", "id", meta.ID, "error", err)
		} else {
			meta.CreatedAt = parsed
		}
		meta.ExpiresAt = parseNullTime(expiresAt, "expires_at", meta.ID)
		meta.LastUsedAt = parseNullTime(lastUsedAt, "last_used_at", meta.ID)

		tokens = append(tokens, meta)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating token rows: %w", err)
	}

	return tokens, nil
}

// scanRow abstracts *sql.Row and *sql.Rows for scanToken.
type scanRow interface {
	Scan(dest ...any) error
}

// scanToken reads a full access_tokens row in column order.
func scanToken(row scanRow) (*AccessToken, error) {
	var tok AccessToken
	var encrypted sql.NullString
	var createdAt string
	var expiresAt, lastUsedAt sql.NullString

	if err := row.Scan(
		&tok.ID,
		&tok.OwnerID,
		&tok.Name,
		&tok.SecretDigest,
		&tok.SecretPrefix,
		&encrypted,
		&createdAt,
		&expiresAt,
		&lastUsedAt,
	); err != nil {
		return nil, err
	}

	if parsed, err := time.Parse(time.RFC3339, createdAt); err != nil {
		slog.Warn("failed to parse token created_at", "id", tok.ID, "error", err)
	} else {
		tok.CreatedAt = parsed
	}
	if encrypted.Valid {
		tok.EncryptedSecret = &encrypted.String
	}
	tok.ExpiresAt = parseNullTime(expiresAt, "expires_at", tok.ID)
	tok.LastUsedAt = parseNullTime(lastUsedAt, "last_used_at", tok.ID)

	return &tok, nil
}

// Ensure SQLiteStore implements TokenStore.
var _ TokenStore = (*SQLiteStore)(nil)
