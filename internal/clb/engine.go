package clb

import (
	dErrors "immimate/pkg/domain-errors"
)

// Engine converts raw scores against a single table.
type Engine struct {
	table *Table
}

// NewEngine fails with a configuration error when table is nil.
func NewEngine(table *Table) (*Engine, error) {
	if table == nil {
		return nil, dErrors.Wrap(ErrNoTable, dErrors.CodeConfiguration, "language test conversion table is not configured")
	}
	return &Engine{table: table}, nil
}

// Table returns the table the engine converts against.
func (e *Engine) Table() *Table {
	return e.table
}

// Convert looks up the CLB level for a score. The second result is false when
// the test, skill, or score is not in the table.
func (e *Engine) Convert(test TestType, skill Skill, raw RawScore) (Level, bool) {
	m, ok := e.table.ScoreMap(test, skill)
	if !ok {
		return 0, false
	}
	return m.lookup(raw.Value())
}

// Lookup converts a plain score string.
func (e *Engine) Lookup(test TestType, skill Skill, score string) (Level, bool) {
	return e.Convert(test, skill, Scalar(score))
}

// ConvertAll converts all four skills of one test. Skills without a level are
// omitted from the result.
func (e *Engine) ConvertAll(test TestType, scores map[Skill]RawScore) map[Skill]Level {
	out := make(map[Skill]Level, len(scores))
	for skill, raw := range scores {
		if level, ok := e.Convert(test, skill, raw); ok {
			out[skill] = level
		}
	}
	return out
}
