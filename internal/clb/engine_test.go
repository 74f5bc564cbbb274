package clb

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "immimate/pkg/domain-errors"
)

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := DefaultEngine()
	require.NoError(t, err)
	return e
}

func TestConvertScenarios(t *testing.T) {
	e := defaultEngine(t)

	tests := []struct {
		name    string
		test    TestType
		skill   Skill
		raw     RawScore
		want    Level
		wantHit bool
	}{
		{name: "ielts speaking 7.0", test: IELTS, skill: Speaking, raw: Scalar("7.0"), want: 9, wantHit: true},
		{name: "ielts numeric 7 equals 7.0", test: IELTS, skill: Speaking, raw: Scalar("7"), want: 9, wantHit: true},
		{name: "ielts half band", test: IELTS, skill: Writing, raw: Scalar("5.5"), want: 6, wantHit: true},
		{name: "ielts 7.5 is not in the table", test: IELTS, skill: Reading, raw: Scalar("7.5"), wantHit: false},
		{name: "celpip listening 12", test: CELPIP, skill: Listening, raw: Scalar("12"), want: 12, wantHit: true},
		{name: "celpip padded", test: CELPIP, skill: Reading, raw: Scalar(" 8 "), want: 8, wantHit: true},
		{name: "pte reading 45", test: PTE, skill: Reading, raw: Scalar("45"), want: 4, wantHit: true},
		{name: "tef writing 999", test: TEF, skill: Writing, raw: Scalar("999"), wantHit: false},
		{name: "tcf speaking 550", test: TCF, skill: Speaking, raw: Scalar("550"), want: 5, wantHit: true},
		{name: "tcf single point band", test: TCF, skill: Listening, raw: Scalar("1200"), want: 12, wantHit: true},
		{name: "tef band label input", test: TEF, skill: Reading, raw: Scalar("217-248"), want: 5, wantHit: true},
		{name: "labelled option reads value", test: PTE, skill: Speaking, raw: Labelled("60", "58-66 (CLB 6)"), want: 6, wantHit: true},
		{name: "non numeric ranged score", test: PTE, skill: Speaking, raw: Scalar("abc"), wantHit: false},
		{name: "empty score", test: CELPIP, skill: Speaking, raw: Scalar(""), wantHit: false},
		{name: "unknown test", test: TestType("TOEFL"), skill: Speaking, raw: Scalar("100"), wantHit: false},
		{name: "unknown skill", test: IELTS, skill: Skill("grammar"), raw: Scalar("7.0"), wantHit: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.Convert(tt.test, tt.skill, tt.raw)
			assert.Equal(t, tt.wantHit, ok)
			if tt.wantHit {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestConvertRangedBoundaries(t *testing.T) {
	e := defaultEngine(t)

	for _, test := range []TestType{PTE, TEF, TCF} {
		for _, skill := range AllSkills {
			m, ok := e.Table().ScoreMap(test, skill)
			require.True(t, ok)
			for _, r := range m.Ranges() {
				for _, score := range []float64{r.Low, r.High} {
					got, hit := e.Convert(test, skill, Scalar(formatBound(score)))
					require.True(t, hit, "%s %s %v", test, skill, score)
					assert.Equal(t, r.Level, got, "%s %s %v", test, skill, score)
				}
			}
			ranges := m.Ranges()
			below := ranges[0].Low - 1
			above := ranges[len(ranges)-1].High + 1
			_, hit := e.Convert(test, skill, Scalar(formatBound(below)))
			assert.False(t, hit, "%s %s below %v", test, skill, below)
			_, hit = e.Convert(test, skill, Scalar(formatBound(above)))
			assert.False(t, hit, "%s %s above %v", test, skill, above)
		}
	}
}

func TestLabelledAndScalarAgree(t *testing.T) {
	e := defaultEngine(t)

	options := e.Table().Options()
	for test, skills := range options {
		for skill, labels := range skills {
			for _, label := range labels {
				a, okA := e.Convert(test, skill, Scalar(label))
				b, okB := e.Convert(test, skill, Labelled(label, "display "+label))
				assert.Equal(t, okA, okB)
				assert.Equal(t, a, b)
			}
		}
	}
}

func TestDefaultTableIsComplete(t *testing.T) {
	table, err := DefaultTable()
	require.NoError(t, err)
	require.NoError(t, table.Validate())

	for _, test := range AllTestTypes {
		for _, skill := range AllSkills {
			m, ok := table.ScoreMap(test, skill)
			require.True(t, ok, "%s %s", test, skill)
			assert.Equal(t, test.Ranged(), m.IsRanged())
		}
	}
}

func TestValidateReportsProblems(t *testing.T) {
	t.Run("missing pairs", func(t *testing.T) {
		table, err := NewTable(TableData{CELPIP: {Speaking: {"1": 1}}}, "")
		require.NoError(t, err)
		err = table.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTable))
		assert.Contains(t, err.Error(), "IELTS speaking: missing")
		assert.Contains(t, err.Error(), "CELPIP speaking: level 2 unreachable")
	})

	t.Run("overlapping bands", func(t *testing.T) {
		table, err := NewTable(TableData{PTE: {Speaking: {"10-20": 1, "20-29": 2}}}, "")
		require.NoError(t, err)
		assert.ErrorContains(t, table.Validate(), "overlaps")
	})

	t.Run("gap between bands", func(t *testing.T) {
		table, err := NewTable(TableData{PTE: {Speaking: {"10-19": 1, "25-29": 2}}}, "")
		require.NoError(t, err)
		assert.ErrorContains(t, table.Validate(), "gap between")
	})
}

func TestNewTableRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data TableData
	}{
		{name: "unknown test", data: TableData{"TOEFL": {Speaking: {"1": 1}}}},
		{name: "unknown skill", data: TableData{IELTS: {"grammar": {"1.0": 1}}}},
		{name: "level out of scale", data: TableData{IELTS: {Speaking: {"9.0": 13}}}},
		{name: "unparsable band", data: TableData{TEF: {Speaking: {"abc-def": 1}}}},
		{name: "inverted band", data: TableData{TEF: {Speaking: {"200-100": 1}}}},
		{name: "duplicate after normalization", data: TableData{IELTS: {Speaking: {"7": 9, "7.0": 9}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.data, "")
			assert.Error(t, err)
		})
	}
}

func TestNewEngineWithoutTable(t *testing.T) {
	e, err := NewEngine(nil)
	assert.Nil(t, e)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoTable))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))
}

func TestOptionsAreOrdered(t *testing.T) {
	table, err := DefaultTable()
	require.NoError(t, err)
	options := table.Options()

	assert.Equal(t, []string{"1.0", "2.0", "3.0", "4.0", "5.0", "5.5", "6.0", "6.5", "7.0", "8.0", "8.5", "9.0"}, options[IELTS][Speaking])
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"}, options[CELPIP][Writing])
	assert.Equal(t, "101-199", options[TCF][Reading][0])
	assert.Equal(t, "1200", options[TCF][Reading][11])
	assert.Equal(t, "93-100", options[PTE][Listening][9])
}

func TestRangeDescription(t *testing.T) {
	table, err := DefaultTable()
	require.NoError(t, err)

	assert.Equal(t, "Score range: 1-12", table.RangeDescription(CELPIP))
	assert.Equal(t, "Score range: 1.0-9.0", table.RangeDescription(IELTS))
	assert.Equal(t, "Score range: 10-115", table.RangeDescription(PTE))
	assert.Equal(t, "Score range: 121-450", table.RangeDescription(TEF))
	assert.Equal(t, "Score range: 101-1200", table.RangeDescription(TCF))
	assert.Equal(t, "Select a test type", table.RangeDescription(TestType("")))
}

func TestTableJSONRoundTripKeepsConversions(t *testing.T) {
	table, err := DefaultTable()
	require.NoError(t, err)

	b, err := json.Marshal(table)
	require.NoError(t, err)

	var decoded Table
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, table.Fingerprint(), decoded.Fingerprint())
	assert.Equal(t, table.LastUpdated(), decoded.LastUpdated())

	again, err := json.Marshal(&decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(b), string(again))
}

func TestConvertAll(t *testing.T) {
	e := defaultEngine(t)
	got := e.ConvertAll(IELTS, map[Skill]RawScore{
		Speaking:  Scalar("7.0"),
		Listening: Scalar("8.5"),
		Reading:   Scalar("7.5"),
	})
	assert.Equal(t, map[Skill]Level{Speaking: 9, Listening: 11}, got)
}
