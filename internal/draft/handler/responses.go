package handler

import (
	"time"

	"github.com/google/uuid"

	"immimate/internal/draft/models"
)

// DraftResponse is the body of GET /profiles/draft. FormData carries the
// saved fields together with _formId and _lastSaved.
type DraftResponse struct {
	Success        bool           `json:"success"`
	FormData       map[string]any `json:"formData"`
	LastModifiedAt time.Time      `json:"lastModifiedAt"`
	ClientDevice   string         `json:"clientDevice,omitempty"`
}

type SaveResponse struct {
	Success        bool      `json:"success"`
	DraftID        uuid.UUID `json:"draftId"`
	LastModifiedAt time.Time `json:"lastModifiedAt"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func fromDraft(d *models.Draft) *DraftResponse {
	return &DraftResponse{
		Success:        true,
		FormData:       d.FormData,
		LastModifiedAt: d.LastModifiedAt,
		ClientDevice:   d.ClientDevice,
	}
}

func fromSaved(d *models.Draft) *SaveResponse {
	return &SaveResponse{
		Success:        true,
		DraftID:        d.ID,
		LastModifiedAt: d.LastModifiedAt,
	}
}
