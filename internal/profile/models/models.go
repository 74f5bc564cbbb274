package models

import (
	"time"

	"github.com/google/uuid"

	"immimate/internal/clb"
)

// LanguageTest is one test as entered on the form. Scores may be plain
// values or dropdown options.
type LanguageTest struct {
	TestType string                     `json:"testType"`
	Scores   map[clb.Skill]clb.RawScore `json:"scores"`
}

// Submission is the completed profile form.
type Submission struct {
	FullName                  string         `json:"fullName"`
	Primary                   LanguageTest   `json:"primaryLanguageTest"`
	TookSecondaryLanguageTest bool           `json:"tookSecondaryLanguageTest"`
	Secondary                 *LanguageTest  `json:"secondaryLanguageTest,omitempty"`
	Details                   map[string]any `json:"details,omitempty"`
}

// LanguageResult holds the CLB level of each skill next to the score it was
// converted from.
type LanguageResult struct {
	TestType clb.TestType            `json:"testType"`
	Levels   map[clb.Skill]clb.Level `json:"levels"`
	Original map[clb.Skill]string    `json:"original"`
}

// Profile is a stored submission.
type Profile struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"userId"`
	UserEmail string          `json:"userEmail"`
	FullName  string          `json:"fullName"`
	Primary   LanguageResult  `json:"primary"`
	Secondary *LanguageResult `json:"secondary,omitempty"`
	Details   map[string]any  `json:"details,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
