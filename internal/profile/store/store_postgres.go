package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"immimate/internal/profile/models"
	"immimate/pkg/platform/sentinel"
	"immimate/pkg/platform/tx"
)

// PostgresStore keeps submissions in user_immigration_profiles. The converted
// profile is stored as JSON next to the columns it is queried by.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Profile) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	query := `
		INSERT INTO user_immigration_profiles (id, user_id, user_email, profile_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, s.db).ExecContext(ctx, query, p.ID, p.UserID, p.UserEmail, string(body), p.CreatedAt); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	query := `
		SELECT profile_json
		FROM user_immigration_profiles
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var body string
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx, query, userID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile for user %s: %w", userID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	var p models.Profile
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w: %w", sentinel.ErrMalformed, err)
	}
	return &p, nil
}
