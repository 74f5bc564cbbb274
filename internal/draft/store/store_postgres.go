package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"immimate/internal/draft/models"
	"immimate/pkg/platform/sentinel"
	"immimate/pkg/platform/tx"
)

// PostgresStore keeps drafts in the profile_drafts table, one row per user
// and form.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, d *models.Draft) error {
	data, err := json.Marshal(d.FormData)
	if err != nil {
		return fmt.Errorf("encode form data: %w", err)
	}
	query := `
		INSERT INTO profile_drafts (id, user_id, user_email, form_id, form_data_json, client_device, created_at, last_modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, form_id) DO UPDATE SET
			user_email = EXCLUDED.user_email,
			form_data_json = EXCLUDED.form_data_json,
			client_device = EXCLUDED.client_device,
			last_modified_at = EXCLUDED.last_modified_at
		RETURNING id, created_at
	`
	err = tx.Exec(ctx, s.db).QueryRowContext(ctx, query,
		d.ID, d.UserID, d.UserEmail, d.FormID, string(data), d.ClientDevice, d.CreatedAt, d.LastModifiedAt,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, userID uuid.UUID) (*models.Draft, error) {
	query := `
		SELECT id, user_id, user_email, form_id, form_data_json, client_device, created_at, last_modified_at
		FROM profile_drafts
		WHERE user_id = $1
		ORDER BY last_modified_at DESC
		LIMIT 1
	`
	var (
		d    models.Draft
		data string
	)
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx, query, userID).Scan(
		&d.ID, &d.UserID, &d.UserEmail, &d.FormID, &data, &d.ClientDevice, &d.CreatedAt, &d.LastModifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft for user %s: %w", userID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select latest draft: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &d.FormData); err != nil {
		return nil, fmt.Errorf("decode form data: %w: %w", sentinel.ErrMalformed, err)
	}
	return &d, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID uuid.UUID, formID string) error {
	if _, err := tx.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM profile_drafts WHERE user_id = $1 AND form_id = $2`, userID, formID); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context, userID uuid.UUID) (int, error) {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM profile_drafts WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete drafts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete drafts: %w", err)
	}
	return int(n), nil
}
