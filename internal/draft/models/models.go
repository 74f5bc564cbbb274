// Package models holds the server-side draft record.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Form data keys the client adds to every draft.
const (
	KeyFormID    = "_formId"
	KeyLastSaved = "_lastSaved"
	KeyDiscarded = "_discarded"
)

// Draft is a signed-in user's saved form state. A user keeps one draft per
// form; the most recently modified one is "the" draft.
type Draft struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	UserEmail      string
	FormID         string
	FormData       map[string]any
	ClientDevice   string
	CreatedAt      time.Time
	LastModifiedAt time.Time
}

// FormIDOf returns the _formId carried by form data, or "".
func FormIDOf(data map[string]any) string {
	id, _ := data[KeyFormID].(string)
	return id
}

// IsDiscard reports whether form data is a discard marker.
func IsDiscard(data map[string]any) bool {
	discarded, _ := data[KeyDiscarded].(bool)
	return discarded
}
