package clb

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed tables/default.yaml
var defaultTableYAML []byte

type yamlTable struct {
	LastUpdated string                               `yaml:"lastUpdated"`
	Tests       map[string]map[string]map[string]int `yaml:"tests"`
}

// ParseYAML reads a table in the embedded YAML layout.
func ParseYAML(b []byte) (*Table, error) {
	var raw yamlTable
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse conversion table: %w", err)
	}
	data := make(TableData, len(raw.Tests))
	for test, skills := range raw.Tests {
		tt, ok := ParseTestType(test)
		if !ok {
			return nil, fmt.Errorf("parse conversion table: unknown test type %q", test)
		}
		bySkill := make(map[Skill]map[string]Level, len(skills))
		for skill, labels := range skills {
			sk, ok := ParseSkill(skill)
			if !ok {
				return nil, fmt.Errorf("parse conversion table: %s: unknown skill %q", test, skill)
			}
			levels := make(map[string]Level, len(labels))
			for label, level := range labels {
				levels[label] = Level(level)
			}
			bySkill[sk] = levels
		}
		data[tt] = bySkill
	}
	return NewTable(data, raw.LastUpdated)
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
	defaultErr   error
)

// DefaultTable returns the built-in table, used when no server table is
// reachable. It is parsed once.
func DefaultTable() (*Table, error) {
	defaultOnce.Do(func() {
		defaultTable, defaultErr = ParseYAML(defaultTableYAML)
	})
	return defaultTable, defaultErr
}

// DefaultEngine is an engine over DefaultTable.
func DefaultEngine() (*Engine, error) {
	t, err := DefaultTable()
	if err != nil {
		return nil, err
	}
	return NewEngine(t)
}
