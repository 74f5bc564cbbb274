package clb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RawScore is a score as entered on the form: either a plain scalar or a
// dropdown selection carrying a value and a display label. Conversion always
// reads Value(), never the label.
type RawScore struct {
	value    string
	label    string
	labelled bool
}

// Scalar wraps a plain score.
func Scalar(value string) RawScore {
	return RawScore{value: value}
}

// Labelled wraps a dropdown option.
func Labelled(value, label string) RawScore {
	return RawScore{value: value, label: label, labelled: true}
}

// Value is the score used for lookup.
func (r RawScore) Value() string {
	return strings.TrimSpace(r.value)
}

// Label is the display label, falling back to the value.
func (r RawScore) Label() string {
	if r.labelled && r.label != "" {
		return r.label
	}
	return r.value
}

// IsLabelled reports whether the score came from a labelled option.
func (r RawScore) IsLabelled() bool {
	return r.labelled
}

// IsZero reports whether no score was entered.
func (r RawScore) IsZero() bool {
	return r.Value() == ""
}

func (r RawScore) String() string {
	return r.Value()
}

// MarshalJSON writes a scalar as a string and a labelled option as
// {"value": ..., "label": ...}.
func (r RawScore) MarshalJSON() ([]byte, error) {
	if r.labelled {
		return json.Marshal(struct {
			Value string `json:"value"`
			Label string `json:"label"`
		}{r.value, r.label})
	}
	return json.Marshal(r.value)
}

// UnmarshalJSON accepts a string, a number, null, or a {value, label} object
// whose value is itself a string or number.
func (r *RawScore) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = RawScore{}
		return nil
	}
	if data[0] == '{' {
		var opt struct {
			Value json.RawMessage `json:"value"`
			Label json.RawMessage `json:"label"`
		}
		if err := json.Unmarshal(data, &opt); err != nil {
			return fmt.Errorf("decode labelled score: %w", err)
		}
		value, err := scalarText(opt.Value)
		if err != nil {
			return fmt.Errorf("decode labelled score value: %w", err)
		}
		label, err := scalarText(opt.Label)
		if err != nil {
			return fmt.Errorf("decode labelled score label: %w", err)
		}
		*r = Labelled(value, label)
		return nil
	}
	value, err := scalarText(data)
	if err != nil {
		return fmt.Errorf("decode score: %w", err)
	}
	*r = Scalar(value)
	return nil
}

// scalarText renders a JSON string or number as text. Numbers keep their
// literal spelling so "7.0" and 7.0 stay distinguishable until lookup.
func scalarText(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[', 't', 'f':
		return "", fmt.Errorf("unsupported score literal %s", data)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}
