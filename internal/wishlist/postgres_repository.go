package wishlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresRepository persists waitlist entries to the wishlist table.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository constructs a repository backed by sqlx.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts entry. A duplicate email is reported as a validation error.
func (r *PostgresRepository) Create(ctx context.Context, entry Entry) (Entry, error) {
	query := `INSERT INTO wishlist (id, full_name, email, occupation, favourite_games, additional_message, created_at)
VALUES (:id, :full_name, :email, :occupation, :favourite_games, :additional_message, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return Entry{}, &ValidationError{Message: "This email is already on the waitlist"}
		}
		return Entry{}, fmt.Errorf("insert wishlist entry: %w", err)
	}
	return entry, nil
}

// List returns every entry, oldest first.
func (r *PostgresRepository) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	query := `SELECT id, full_name, email, occupation, favourite_games, additional_message, created_at
FROM wishlist ORDER BY created_at, email`
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("list wishlist entries: %w", err)
	}
	return entries, nil
}
