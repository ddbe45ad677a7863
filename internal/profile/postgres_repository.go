package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresRepository persists profile rows to the user_profiles table.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository constructs a repository backed by sqlx.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const profileColumns = `id, username, first_name, last_name, date_of_birth, country, mobile_number, bio, avatar_url, email, status, created_at, updated_at`

// Get retrieves a row by user id, returning nil when it has not been created yet.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE id = $1`
	if err := r.db.GetContext(ctx, &p, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// Upsert inserts the row or updates only the columns carried by p.
func (r *PostgresRepository) Upsert(ctx context.Context, p Profile) (Profile, error) {
	query := `INSERT INTO user_profiles (id, username, first_name, last_name, date_of_birth, country, mobile_number, bio, avatar_url, email, status, created_at, updated_at)
VALUES (:id, :username, :first_name, :last_name, :date_of_birth, :country, :mobile_number, :bio, :avatar_url, :email, :status, COALESCE(:created_at, NOW()), COALESCE(:updated_at, NOW()))
ON CONFLICT (id) DO UPDATE SET
    username = COALESCE(EXCLUDED.username, user_profiles.username),
    first_name = COALESCE(EXCLUDED.first_name, user_profiles.first_name),
    last_name = COALESCE(EXCLUDED.last_name, user_profiles.last_name),
    date_of_birth = COALESCE(EXCLUDED.date_of_birth, user_profiles.date_of_birth),
    country = COALESCE(EXCLUDED.country, user_profiles.country),
    mobile_number = COALESCE(EXCLUDED.mobile_number, user_profiles.mobile_number),
    bio = COALESCE(EXCLUDED.bio, user_profiles.bio),
    avatar_url = COALESCE(EXCLUDED.avatar_url, user_profiles.avatar_url),
    email = COALESCE(EXCLUDED.email, user_profiles.email),
    status = COALESCE(EXCLUDED.status, user_profiles.status),
    updated_at = EXCLUDED.updated_at
RETURNING ` + profileColumns

	rows, err := r.db.NamedQueryContext(ctx, query, p)
	if err != nil {
		return Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	defer rows.Close()

	var stored Profile
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Profile{}, fmt.Errorf("upsert profile: %w", err)
		}
		return Profile{}, fmt.Errorf("upsert profile: no row returned")
	}
	if err := rows.StructScan(&stored); err != nil {
		return Profile{}, fmt.Errorf("scan profile: %w", err)
	}
	return stored, nil
}

// Delete removes the row for userID.
func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_profiles WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}
