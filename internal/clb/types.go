// Package clb converts language test scores to Canadian Language Benchmark
// levels.
//
// Conversion is a pure lookup against an immutable Table. Tests come in two
// shapes: discrete tables (CELPIP, IELTS) map exact score labels to a level,
// ranged tables (PTE, TEF, TCF) map inclusive numeric ranges to a level. A
// score that is not in the table has no level; the engine never rounds or
// guesses the nearest band.
package clb

import "strings"

// TestType identifies a supported language test.
type TestType string

const (
	CELPIP TestType = "CELPIP"
	IELTS  TestType = "IELTS"
	PTE    TestType = "PTE"
	TEF    TestType = "TEF"
	TCF    TestType = "TCF"
)

// AllTestTypes lists the supported tests in display order.
var AllTestTypes = []TestType{CELPIP, IELTS, PTE, TEF, TCF}

// ParseTestType accepts any casing ("ielts", "IELTS ").
func ParseTestType(s string) (TestType, bool) {
	t := TestType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Valid reports whether t is one of the supported tests.
func (t TestType) Valid() bool {
	_, ok := families[t]
	return ok
}

// Ranged reports whether the test is scored on a numeric scale bucketed into
// ranges rather than a fixed set of labels.
func (t TestType) Ranged() bool {
	switch t {
	case PTE, TEF, TCF:
		return true
	default:
		return false
	}
}

// Skill is one of the four assessed abilities.
type Skill string

const (
	Speaking  Skill = "speaking"
	Listening Skill = "listening"
	Reading   Skill = "reading"
	Writing   Skill = "writing"
)

// AllSkills lists the skills in display order.
var AllSkills = []Skill{Speaking, Listening, Reading, Writing}

// ParseSkill accepts any casing.
func ParseSkill(s string) (Skill, bool) {
	sk := Skill(strings.ToLower(strings.TrimSpace(s)))
	return sk, sk.Valid()
}

// Valid reports whether s is one of the four skills.
func (s Skill) Valid() bool {
	switch s {
	case Speaking, Listening, Reading, Writing:
		return true
	default:
		return false
	}
}

// Level is a CLB level between MinLevel and MaxLevel.
type Level int

const (
	MinLevel Level = 1
	MaxLevel Level = 12
)

// Valid reports whether l is on the CLB scale.
func (l Level) Valid() bool {
	return l >= MinLevel && l <= MaxLevel
}
