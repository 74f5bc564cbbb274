package handler

import (
	"immimate/internal/clb"
	"immimate/internal/clb/service"
)

// ConversionsResponse is the body of GET /language-tests/conversions. Tests
// holds test type -> skill -> score label -> CLB level.
type ConversionsResponse struct {
	Tests        clb.TableData `json:"tests"`
	LastUpdated  string        `json:"lastUpdated,omitempty"`
	CacheEnabled bool          `json:"cacheEnabled"`
}

// TestOptionsResponse is one entry of GET /language-tests/options.
type TestOptionsResponse struct {
	TestType         clb.TestType           `json:"testType"`
	Family           clb.Family             `json:"family"`
	Ranged           bool                   `json:"ranged"`
	RangeDescription string                 `json:"rangeDescription"`
	Skills           map[clb.Skill][]string `json:"skills"`
}

type OptionsResponse struct {
	Tests []TestOptionsResponse `json:"tests"`
}

// ConvertRequest is the body of POST /language-tests/convert. Score may be a
// string, a number, or a {value, label} option.
type ConvertRequest struct {
	TestType string       `json:"testType"`
	Skill    string       `json:"skill"`
	Score    clb.RawScore `json:"score"`
}

type ConvertResponse struct {
	TestType clb.TestType `json:"testType"`
	Skill    clb.Skill    `json:"skill"`
	Score    string       `json:"score"`
	CLBLevel clb.Level    `json:"clbLevel"`
}

func fromTable(table *clb.Table, cacheEnabled bool) *ConversionsResponse {
	return &ConversionsResponse{
		Tests:        table.Data(),
		LastUpdated:  table.LastUpdated(),
		CacheEnabled: cacheEnabled,
	}
}

func fromOptions(opts []service.TestOptions) *OptionsResponse {
	out := &OptionsResponse{Tests: make([]TestOptionsResponse, 0, len(opts))}
	for _, o := range opts {
		out.Tests = append(out.Tests, TestOptionsResponse{
			TestType:         o.TestType,
			Family:           o.Family,
			Ranged:           o.Ranged,
			RangeDescription: o.RangeDescription,
			Skills:           o.Skills,
		})
	}
	return out
}

func fromConversion(c *service.Conversion) *ConvertResponse {
	return &ConvertResponse{
		TestType: c.TestType,
		Skill:    c.Skill,
		Score:    c.Score,
		CLBLevel: c.Level,
	}
}
