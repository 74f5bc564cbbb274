package clb

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// TableData is the serializable shape of a table:
// test type -> skill -> score label -> level.
type TableData map[TestType]map[Skill]map[string]Level

// Table is an immutable set of score maps. Tables may be partial; Validate
// reports what is missing.
type Table struct {
	maps        map[TestType]map[Skill]ScoreMap
	lastUpdated string
}

// NewTable builds a table from its serialized form. Whether a test is
// discrete or ranged follows from the test type.
func NewTable(data TableData, lastUpdated string) (*Table, error) {
	t := &Table{
		maps:        make(map[TestType]map[Skill]ScoreMap, len(data)),
		lastUpdated: lastUpdated,
	}
	for test, skills := range data {
		if !test.Valid() {
			return nil, fmt.Errorf("unknown test type %q", test)
		}
		bySkill := make(map[Skill]ScoreMap, len(skills))
		for skill, labels := range skills {
			if !skill.Valid() {
				return nil, fmt.Errorf("%s: unknown skill %q", test, skill)
			}
			m, err := newScoreMap(test.Ranged(), labels)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", test, skill, err)
			}
			bySkill[skill] = m
		}
		t.maps[test] = bySkill
	}
	return t, nil
}

// ScoreMap returns the map for one (test, skill) pair.
func (t *Table) ScoreMap(test TestType, skill Skill) (ScoreMap, bool) {
	if t == nil {
		return ScoreMap{}, false
	}
	skills, ok := t.maps[test]
	if !ok {
		return ScoreMap{}, false
	}
	m, ok := skills[skill]
	return m, ok
}

// LastUpdated is the table's version stamp, as recorded by its source.
func (t *Table) LastUpdated() string {
	return t.lastUpdated
}

// Data returns a copy of the table in serialized form.
func (t *Table) Data() TableData {
	out := make(TableData, len(t.maps))
	for test, skills := range t.maps {
		bySkill := make(map[Skill]map[string]Level, len(skills))
		for skill, m := range skills {
			bySkill[skill] = m.Levels()
		}
		out[test] = bySkill
	}
	return out
}

// Options returns the valid score labels for every pair, ascending by score.
func (t *Table) Options() map[TestType]map[Skill][]string {
	out := make(map[TestType]map[Skill][]string, len(t.maps))
	for test, skills := range t.maps {
		bySkill := make(map[Skill][]string, len(skills))
		for skill, m := range skills {
			bySkill[skill] = m.Labels()
		}
		out[test] = bySkill
	}
	return out
}

// Validate checks that every supported (test, skill) pair is present, that
// every level 1-12 is reachable from each pair, and that ranged bands neither
// overlap nor leave gaps on the integer scale.
func (t *Table) Validate() error {
	var errs []error
	for _, test := range AllTestTypes {
		for _, skill := range AllSkills {
			m, ok := t.ScoreMap(test, skill)
			if !ok {
				errs = append(errs, fmt.Errorf("%s %s: missing", test, skill))
				continue
			}
			seen := make(map[Level]bool, MaxLevel)
			for _, e := range m.entries {
				seen[e.level] = true
			}
			for l := MinLevel; l <= MaxLevel; l++ {
				if !seen[l] {
					errs = append(errs, fmt.Errorf("%s %s: level %d unreachable", test, skill, l))
				}
			}
			ranges := m.Ranges()
			for i := 1; i < len(ranges); i++ {
				prev, next := ranges[i-1], ranges[i]
				switch {
				case next.Low <= prev.High:
					errs = append(errs, fmt.Errorf("%s %s: %s overlaps %s", test, skill, next.Label, prev.Label))
				case next.Low > prev.High+1:
					errs = append(errs, fmt.Errorf("%s %s: gap between %s and %s", test, skill, prev.Label, next.Label))
				}
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTable, errors.Join(errs...))
	}
	return nil
}

type tableJSON struct {
	Tests       TableData `json:"tests"`
	LastUpdated string    `json:"lastUpdated,omitempty"`
}

// MarshalJSON encodes the table. Map keys are sorted by encoding/json, so two
// equal tables encode to identical bytes.
func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(tableJSON{Tests: t.Data(), LastUpdated: t.lastUpdated})
}

// UnmarshalJSON decodes the MarshalJSON form.
func (t *Table) UnmarshalJSON(b []byte) error {
	var raw tableJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := NewTable(raw.Tests, raw.LastUpdated)
	if err != nil {
		return err
	}
	*t = *parsed
	return nil
}

// Fingerprint is a digest of the table contents, ignoring lastUpdated. Two
// tables with the same fingerprint convert every score identically.
func (t *Table) Fingerprint() string {
	b, err := json.Marshal(t.Data())
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// RangeDescription is the human readable score span of a test, e.g.
// "Score range: 121-450".
func (t *Table) RangeDescription(test TestType) string {
	m, ok := t.ScoreMap(test, Speaking)
	if !ok || len(m.entries) == 0 {
		return "Select a test type"
	}
	first, last := m.entries[0], m.entries[len(m.entries)-1]
	if m.ranged {
		return fmt.Sprintf("Score range: %s-%s", formatBound(first.rng.Low), formatBound(last.rng.High))
	}
	return fmt.Sprintf("Score range: %s-%s", first.label, last.label)
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
