package draftsync

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"immimate/pkg/platform/sentinel"
)

// Metadata keys stored alongside the form fields.
const (
	KeyFormID    = "_formId"
	KeyLastSaved = "_lastSaved"
	KeyDiscarded = "_discarded"
)

// Payload is the form state: field name to JSON value.
type Payload map[string]any

// Record is a saved draft.
type Record struct {
	FormID      string
	Payload     Payload
	LastSavedAt time.Time
}

// Source says where a loaded record came from.
type Source string

const (
	SourceNone   Source = ""
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
	// SourceInitial means neither store had a draft.
	SourceInitial Source = "initial"
)

// Wire returns the payload with _formId and _lastSaved added, the shape both
// stores persist.
func (r Record) Wire() map[string]any {
	out := make(map[string]any, len(r.Payload)+2)
	for k, v := range r.Payload {
		out[k] = v
	}
	out[KeyFormID] = r.FormID
	out[KeyLastSaved] = r.LastSavedAt.UTC().Format(time.RFC3339Nano)
	return out
}

// RecordFromWire splits metadata from form fields. A missing or unparsable
// _lastSaved yields the zero time, so any dated record wins against it.
func RecordFromWire(m map[string]any) (Record, error) {
	if m == nil {
		return Record{}, fmt.Errorf("draft record is empty: %w", sentinel.ErrMalformed)
	}
	formID, _ := m[KeyFormID].(string)
	if formID == "" {
		return Record{}, fmt.Errorf("draft record has no %s: %w", KeyFormID, sentinel.ErrMalformed)
	}
	var savedAt time.Time
	if s, ok := m[KeyLastSaved].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			savedAt = t
		}
	}
	payload := make(Payload, len(m))
	for k, v := range m {
		if k == KeyFormID || k == KeyLastSaved {
			continue
		}
		payload[k] = v
	}
	return Record{FormID: formID, Payload: payload, LastSavedAt: savedAt}, nil
}

// normalize round-trips p through JSON so payloads compare equal regardless
// of the Go types the caller used (int vs float64, typed slices).
func normalize(p Payload) (Payload, error) {
	if p == nil {
		return Payload{}, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode draft payload: %w", err)
	}
	var out Payload
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode draft payload: %w", err)
	}
	if out == nil {
		out = Payload{}
	}
	return out, nil
}

// clone deep-copies JSON-shaped values.
func clone(p Payload) Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case Payload:
		return map[string]any(clone(t))
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}

func equalPayload(a, b Payload) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

// reconcile picks the record to adopt. Remote wins only when strictly newer;
// ties go to Local.
func reconcile(local, remote *Record) (*Record, Source) {
	switch {
	case local == nil && remote == nil:
		return nil, SourceInitial
	case remote == nil:
		return local, SourceLocal
	case local == nil:
		return remote, SourceRemote
	case remote.LastSavedAt.After(local.LastSavedAt):
		return remote, SourceRemote
	default:
		return local, SourceLocal
	}
}
