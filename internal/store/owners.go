// ABOUTME: Owner persistence for the SQLite store
// ABOUTME: Owner deletion cascades to the owner's access tokens

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// CreateOwner inserts a new owner.
// Returns ErrDuplicateOwner if the ID is already taken.
func (s *SQLiteStore) CreateOwner(ctx context.Context, owner *Owner) error {
	if owner.ID == "" {
		owner.ID = uuid.New().String()
	}
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO owners (id, display_name, created_at) VALUES (?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		owner.ID,
		owner.DisplayName,
		owner.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateOwner
		}
		return fmt.Errorf("inserting owner: %w", err)
	}

	s.logger.Debug("created owner", "id", owner.ID, "display_name", owner.DisplayName)
	return nil
}

// GetOwner retrieves an owner by ID.
// Returns ErrNotFound if the owner doesn't exist.
func (s *SQLiteStore) GetOwner(ctx context.Context, id string) (*Owner, error) {
	query := `SELECT id, display_name, created_at FROM owners WHERE id = ?`

	var owner Owner
	var createdAt string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&owner.ID,
		&owner.DisplayName,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying owner: %w", err)
	}

	if parsed, err := time.Parse(time.RFC3339, createdAt); err != nil {
		slog.Warn("failed to parse owner created_at", "id", owner.ID, "error", err)
	} else {
		owner.CreatedAt = parsed
	}

	return &owner, nil
}

// DeleteOwner removes an owner. The foreign key cascade removes the owner's
// access tokens in the same statement.
// Returns ErrNotFound if the owner doesn't exist.
func (s *SQLiteStore) DeleteOwner(ctx context.Context, id string) error {
	query := `DELETE FROM owners WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting owner: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted owner", "id", id)
	return nil
}

// CountOwners returns the total number of owners.
func (s *SQLiteStore) CountOwners(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM owners`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting owners: %w", err)
	}
	return count, nil
}

// Ensure SQLiteStore implements OwnerStore.
var _ OwnerStore = (*SQLiteStore)(nil)
