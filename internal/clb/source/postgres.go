package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"immimate/internal/clb"
	"immimate/pkg/platform/sentinel"
)

const converterTable = "static_canadian_immigration_data.clb_test_converter"

// column is one (test, skill) cell of the converter table.
type column struct {
	name  string
	test  clb.TestType
	skill clb.Skill
}

var columns = func() []column {
	out := make([]column, 0, len(clb.AllTestTypes)*len(clb.AllSkills))
	for _, test := range clb.AllTestTypes {
		for _, skill := range clb.AllSkills {
			out = append(out, column{
				name:  strings.ToLower(string(test)) + "_" + string(skill),
				test:  test,
				skill: skill,
			})
		}
	}
	return out
}()

// Postgres reads the converter table: one row per CLB level, one text column
// per (test, skill) holding the score label for that level. Empty and "N/A"
// cells are skipped.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Load(ctx context.Context) (*clb.Table, error) {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
	}
	query := fmt.Sprintf(
		`SELECT clb_level, %s, last_updated FROM %s WHERE active ORDER BY clb_level`,
		strings.Join(names, ", "), converterTable,
	)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query clb converter: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()

	data := make(clb.TableData, len(clb.AllTestTypes))
	var newest time.Time
	found := false
	for rows.Next() {
		var (
			level   int
			cells   = make([]sql.NullString, len(columns))
			updated sql.NullTime
		)
		dest := make([]any, 0, len(columns)+2)
		dest = append(dest, &level)
		for i := range cells {
			dest = append(dest, &cells[i])
		}
		dest = append(dest, &updated)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan clb converter row: %w", err)
		}
		found = true
		if updated.Valid && updated.Time.After(newest) {
			newest = updated.Time
		}
		for i, c := range columns {
			label := strings.TrimSpace(cells[i].String)
			if !cells[i].Valid || label == "" || strings.EqualFold(label, "N/A") {
				continue
			}
			if data[c.test] == nil {
				data[c.test] = make(map[clb.Skill]map[string]clb.Level, len(clb.AllSkills))
			}
			if data[c.test][c.skill] == nil {
				data[c.test][c.skill] = make(map[string]clb.Level)
			}
			data[c.test][c.skill][label] = clb.Level(level)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clb converter rows: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("clb converter is empty: %w", sentinel.ErrNotFound)
	}

	lastUpdated := ""
	if !newest.IsZero() {
		lastUpdated = newest.UTC().Format(time.RFC3339)
	}
	return clb.NewTable(data, lastUpdated)
}

// Seed writes table into the converter as active rows, deactivating any
// previous rows. Used by migrations and tests.
func (s *Postgres) Seed(ctx context.Context, table *clb.Table, now time.Time) error {
	byLevel := make(map[clb.Level]map[string]string, clb.MaxLevel)
	for test, skills := range table.Data() {
		for skill, labels := range skills {
			col := strings.ToLower(string(test)) + "_" + string(skill)
			for label, level := range labels {
				if byLevel[level] == nil {
					byLevel[level] = make(map[string]string, len(columns))
				}
				byLevel[level][col] = label
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE `+converterTable+` SET active = FALSE WHERE active`); err != nil {
		return fmt.Errorf("deactivate clb converter rows: %w", err)
	}

	names := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}
	insert := fmt.Sprintf(
		`INSERT INTO %s (clb_level, %s, last_updated, active) VALUES ($1, %s, $%d, TRUE)`,
		converterTable, strings.Join(names, ", "), strings.Join(placeholders, ", "), len(columns)+2,
	)
	for level := clb.MinLevel; level <= clb.MaxLevel; level++ {
		cells, ok := byLevel[level]
		if !ok {
			continue
		}
		args := make([]any, 0, len(columns)+2)
		args = append(args, int(level))
		for _, c := range columns {
			if v, ok := cells[c.name]; ok {
				args = append(args, v)
			} else {
				args = append(args, nil)
			}
		}
		args = append(args, now)
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return fmt.Errorf("insert clb level %d: %w", level, err)
		}
	}
	return tx.Commit()
}
