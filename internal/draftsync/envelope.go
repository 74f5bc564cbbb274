package draftsync

import (
	"encoding/json"
	"fmt"
	"time"

	"immimate/pkg/platform/sentinel"
)

// LocalKey is the LocalStore key for formID.
func LocalKey(formID string) string {
	return "form_draft_" + formID
}

// envelope is the LocalStore value. Expiration is Unix milliseconds.
type envelope struct {
	Data       map[string]any `json:"data"`
	Expiration int64          `json:"expiration"`
	FormID     string         `json:"formId"`
}

func encodeEnvelope(rec Record, expiresAt time.Time) (string, error) {
	b, err := json.Marshal(envelope{
		Data:       rec.Wire(),
		Expiration: expiresAt.UnixMilli(),
		FormID:     rec.FormID,
	})
	if err != nil {
		return "", fmt.Errorf("encode local draft: %w", err)
	}
	return string(b), nil
}

// decodeEnvelope parses a stored value. Expired entries return
// sentinel.ErrExpired; unreadable ones sentinel.ErrMalformed.
func decodeEnvelope(raw string, now time.Time) (envelope, Record, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return envelope{}, Record{}, fmt.Errorf("decode local draft: %w: %w", sentinel.ErrMalformed, err)
	}
	if env.Data == nil {
		return envelope{}, Record{}, fmt.Errorf("local draft has no data: %w", sentinel.ErrMalformed)
	}
	if env.Expiration > 0 && now.UnixMilli() > env.Expiration {
		return env, Record{}, fmt.Errorf("local draft expired at %d: %w", env.Expiration, sentinel.ErrExpired)
	}
	rec, err := RecordFromWire(env.Data)
	if err != nil {
		return env, Record{}, err
	}
	return env, rec, nil
}
