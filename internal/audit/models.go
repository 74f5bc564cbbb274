// Package audit records lifecycle events of drafts and profiles and ships them
// to an event sink without slowing the request that produced them.
package audit

import (
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	EventDraftSaved       Action = "draft_saved"
	EventDraftDiscarded   Action = "draft_discarded"
	EventProfileSubmitted Action = "profile_submitted"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	FormID    string    `json:"form_id,omitempty"`
	// Subject is the record the action produced, e.g. a profile ID.
	Subject   string `json:"subject,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
