package clb

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameLanguageFamily(t *testing.T) {
	assert.True(t, SameLanguageFamily(IELTS, CELPIP))
	assert.True(t, SameLanguageFamily(TEF, TCF))
	assert.False(t, SameLanguageFamily(IELTS, TEF))
	assert.False(t, SameLanguageFamily(IELTS, TestType("TOEFL")))

	for _, a := range AllTestTypes {
		for _, b := range AllTestTypes {
			assert.Equal(t, SameLanguageFamily(a, b), SameLanguageFamily(b, a), "%s/%s", a, b)
		}
	}
}

func TestSecondaryTestOptions(t *testing.T) {
	assert.Equal(t, []TestType{TEF, TCF}, SecondaryTestOptions(IELTS))
	assert.Equal(t, []TestType{CELPIP, IELTS, PTE}, SecondaryTestOptions(TCF))
	assert.Empty(t, SecondaryTestOptions(TestType("")))
}

func TestParseTestTypeAndSkill(t *testing.T) {
	tt, ok := ParseTestType(" ielts ")
	assert.True(t, ok)
	assert.Equal(t, IELTS, tt)

	_, ok = ParseTestType("toefl")
	assert.False(t, ok)

	sk, ok := ParseSkill("Speaking")
	assert.True(t, ok)
	assert.Equal(t, Speaking, sk)
}

func TestRawScoreUnmarshal(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		value     string
		label     string
		labelled  bool
		wantError bool
	}{
		{name: "string", input: `"7.0"`, value: "7.0", label: "7.0"},
		{name: "number keeps literal", input: `7.0`, value: "7.0", label: "7.0"},
		{name: "integer", input: `45`, value: "45"},
		{name: "null", input: `null`, value: ""},
		{name: "labelled string", input: `{"value":"217-248","label":"217-248 (CLB 5)"}`, value: "217-248", label: "217-248 (CLB 5)", labelled: true},
		{name: "labelled number", input: `{"value":8,"label":"CLB 8"}`, value: "8", label: "CLB 8", labelled: true},
		{name: "array rejected", input: `[1]`, wantError: true},
		{name: "bool rejected", input: `true`, wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r RawScore
			err := json.Unmarshal([]byte(tt.input), &r)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.value, r.Value())
			assert.Equal(t, tt.labelled, r.IsLabelled())
			if tt.label != "" {
				assert.Equal(t, tt.label, r.Label())
			}
		})
	}
}

func TestRawScoreMarshal(t *testing.T) {
	b, err := json.Marshal(Scalar("6.5"))
	require.NoError(t, err)
	assert.JSONEq(t, `"6.5"`, string(b))

	b, err = json.Marshal(Labelled("6", "CLB 6"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"6","label":"CLB 6"}`, string(b))
}
