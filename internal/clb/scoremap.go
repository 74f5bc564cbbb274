package clb

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Range is an inclusive band of a ranged score scale.
type Range struct {
	Low   float64
	High  float64
	Level Level
	Label string
}

// Contains reports whether score falls inside the band.
func (r Range) Contains(score float64) bool {
	return score >= r.Low && score <= r.High
}

type entry struct {
	label string
	key   string
	level Level
	rng   Range
}

// ScoreMap maps the scores of one (test, skill) pair to CLB levels.
type ScoreMap struct {
	ranged  bool
	entries []entry
	index   map[string]Level
}

func newScoreMap(ranged bool, labels map[string]Level) (ScoreMap, error) {
	m := ScoreMap{
		ranged:  ranged,
		entries: make([]entry, 0, len(labels)),
		index:   make(map[string]Level, len(labels)),
	}
	for label, level := range labels {
		if !level.Valid() {
			return ScoreMap{}, fmt.Errorf("score %q: level %d outside %d-%d", label, level, MinLevel, MaxLevel)
		}
		e := entry{label: label, key: canonical(label), level: level}
		if ranged {
			rng, err := parseRange(label)
			if err != nil {
				return ScoreMap{}, err
			}
			rng.Level = level
			e.rng = rng
		}
		if _, dup := m.index[e.key]; dup {
			return ScoreMap{}, fmt.Errorf("score %q listed twice", label)
		}
		m.index[e.key] = level
		m.entries = append(m.entries, e)
	}
	sort.SliceStable(m.entries, func(i, j int) bool {
		return m.entries[i].sortKey() < m.entries[j].sortKey()
	})
	return m, nil
}

func (e entry) sortKey() float64 {
	if e.rng.Label != "" {
		return e.rng.Low
	}
	if f, err := strconv.ParseFloat(e.key, 64); err == nil {
		return f
	}
	return float64(e.level)
}

// IsRanged reports whether the map is range based.
func (m ScoreMap) IsRanged() bool {
	return m.ranged
}

// Labels returns the valid score labels in ascending score order.
func (m ScoreMap) Labels() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.label
	}
	return out
}

// Ranges returns the bands of a ranged map ordered by lower bound.
func (m ScoreMap) Ranges() []Range {
	if !m.ranged {
		return nil
	}
	out := make([]Range, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.rng
	}
	return out
}

// Levels returns label -> level for serialization.
func (m ScoreMap) Levels() map[string]Level {
	out := make(map[string]Level, len(m.entries))
	for _, e := range m.entries {
		out[e.label] = e.level
	}
	return out
}

func (m ScoreMap) lookup(raw string) (Level, bool) {
	key := canonical(raw)
	if key == "" {
		return 0, false
	}
	// Dropdowns submit the band label itself ("217-248"); that matches exactly
	// on both shapes.
	if level, ok := m.index[key]; ok {
		return level, true
	}
	if !m.ranged {
		return 0, false
	}
	score, err := strconv.ParseFloat(key, 64)
	if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, false
	}
	for _, e := range m.entries {
		if e.rng.Contains(score) {
			return e.level, true
		}
	}
	return 0, false
}

// canonical normalizes a score so that 7, "7" and "7.0" compare equal.
func canonical(s string) string {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return s
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// parseRange reads "low-high" or a single value "n" (a one-point band).
func parseRange(label string) (Range, error) {
	trimmed := strings.TrimSpace(label)
	lowText, highText, isRange := strings.Cut(trimmed, "-")
	if !isRange {
		highText = lowText
	}
	low, err := strconv.ParseFloat(strings.TrimSpace(lowText), 64)
	if err != nil {
		return Range{}, fmt.Errorf("range %q: invalid lower bound", label)
	}
	high, err := strconv.ParseFloat(strings.TrimSpace(highText), 64)
	if err != nil {
		return Range{}, fmt.Errorf("range %q: invalid upper bound", label)
	}
	if low > high {
		return Range{}, fmt.Errorf("range %q: lower bound above upper bound", label)
	}
	return Range{Low: low, High: high, Label: label}, nil
}
