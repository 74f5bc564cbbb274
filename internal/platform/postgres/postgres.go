// Package postgres opens the shared *sql.DB and applies the schema the stores
// expect.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // postgres driver

	"immimate/internal/platform/config"
)

// Open connects to PostgreSQL. Returns nil if the URL is empty (Postgres not configured).
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS static_canadian_immigration_data`,
	`CREATE TABLE IF NOT EXISTS static_canadian_immigration_data.clb_test_converter (
		id               BIGSERIAL PRIMARY KEY,
		clb_level        INTEGER NOT NULL,
		celpip_listening TEXT, celpip_reading TEXT, celpip_writing TEXT, celpip_speaking TEXT,
		ielts_listening  TEXT, ielts_reading  TEXT, ielts_writing  TEXT, ielts_speaking  TEXT,
		pte_listening    TEXT, pte_reading    TEXT, pte_writing    TEXT, pte_speaking    TEXT,
		tef_listening    TEXT, tef_reading    TEXT, tef_writing    TEXT, tef_speaking    TEXT,
		tcf_listening    TEXT, tcf_reading    TEXT, tcf_writing    TEXT, tcf_speaking    TEXT,
		last_updated     TIMESTAMPTZ,
		active           BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS profile_drafts (
		id               UUID PRIMARY KEY,
		user_id          UUID NOT NULL,
		user_email       TEXT NOT NULL,
		form_id          TEXT NOT NULL,
		form_data_json   TEXT NOT NULL,
		client_device    TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL,
		last_modified_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_profile_drafts_user_form
		ON profile_drafts (user_id, form_id)`,
	`CREATE INDEX IF NOT EXISTS idx_profile_drafts_user_modified
		ON profile_drafts (user_id, last_modified_at DESC)`,
	`CREATE TABLE IF NOT EXISTS user_immigration_profiles (
		id           UUID PRIMARY KEY,
		user_id      UUID NOT NULL,
		user_email   TEXT NOT NULL,
		profile_json TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
