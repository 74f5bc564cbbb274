package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immimate/internal/clb"
	"immimate/internal/clb/service"
	"immimate/internal/clb/source"
	"immimate/pkg/testutil"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	svc := service.New(source.Embedded{}, logger, service.WithCacheEnabled(true))
	r := chi.NewRouter()
	New(svc, logger).Register(r)
	return r
}

func TestHandleConversions(t *testing.T) {
	rr := testutil.Do(newRouter(t), testutil.NewJSONRequest(t, http.MethodGet, "/language-tests/conversions", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	resp := testutil.Decode[ConversionsResponse](t, rr)
	assert.True(t, resp.CacheEnabled)
	assert.Equal(t, "2024-01-01", resp.LastUpdated)
	assert.Equal(t, clb.Level(5), resp.Tests[clb.TEF][clb.Writing]["217-248"])
	assert.Equal(t, clb.Level(12), resp.Tests[clb.TCF][clb.Speaking]["1200"])
}

// The client falls back to the embedded table when the server is down. Both
// must convert every score identically.
func TestConversionsMatchEmbeddedFallback(t *testing.T) {
	rr := testutil.Do(newRouter(t), testutil.NewJSONRequest(t, http.MethodGet, "/language-tests/conversions", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var served clb.Table
	require.NoError(t, served.UnmarshalJSON(rr.Body.Bytes()))

	fallback, err := clb.DefaultTable()
	require.NoError(t, err)

	for _, test := range clb.AllTestTypes {
		for _, skill := range clb.AllSkills {
			got, ok := served.ScoreMap(test, skill)
			require.True(t, ok, "%s %s", test, skill)
			want, _ := fallback.ScoreMap(test, skill)
			assert.Equal(t, want.Levels(), got.Levels(), "%s %s", test, skill)
		}
	}
	assert.Equal(t, fallback.Fingerprint(), served.Fingerprint())
}

func TestHandleOptions(t *testing.T) {
	rr := testutil.Do(newRouter(t), testutil.NewJSONRequest(t, http.MethodGet, "/language-tests/options", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	resp := testutil.Decode[OptionsResponse](t, rr)
	require.Len(t, resp.Tests, 5)
	assert.Equal(t, clb.IELTS, resp.Tests[1].TestType)
	assert.Equal(t, "Score range: 1.0-9.0", resp.Tests[1].RangeDescription)
	assert.Equal(t, "10-19", resp.Tests[2].Skills[clb.Reading][0])
}

func TestHandleConvertQuery(t *testing.T) {
	router := newRouter(t)

	tests := []struct {
		name   string
		query  string
		status int
		level  clb.Level
		code   string
	}{
		{name: "ielts speaking", query: "testType=IELTS&skill=speaking&score=7.0", status: http.StatusOK, level: 9},
		{name: "pte reading", query: "testType=PTE&skill=reading&score=45", status: http.StatusOK, level: 4},
		{name: "tcf speaking", query: "testType=tcf&skill=speaking&score=550", status: http.StatusOK, level: 5},
		{name: "out of table", query: "testType=TEF&skill=writing&score=999", status: http.StatusNotFound, code: "conversion_miss"},
		{name: "unknown test", query: "testType=TOEFL&skill=writing&score=99", status: http.StatusBadRequest, code: "validation_error"},
		{name: "missing score", query: "testType=IELTS&skill=writing", status: http.StatusBadRequest, code: "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := testutil.Do(router, testutil.NewJSONRequest(t, http.MethodGet, "/language-tests/convert?"+tt.query, nil))
			if tt.code != "" {
				testutil.AssertError(t, rr, tt.status, tt.code)
				return
			}
			require.Equal(t, tt.status, rr.Code)
			resp := testutil.Decode[ConvertResponse](t, rr)
			assert.Equal(t, tt.level, resp.CLBLevel)
		})
	}
}

func TestHandleConvertUnwrapsLabelledScore(t *testing.T) {
	router := newRouter(t)

	req := testutil.NewRawRequest(http.MethodPost, "/language-tests/convert",
		`{"testType":"CELPIP","skill":"listening","score":{"value":12,"label":"12 (CLB 12)"}}`)
	rr := testutil.Do(router, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, clb.Level(12), testutil.Decode[ConvertResponse](t, rr).CLBLevel)

	rr = testutil.Do(router, testutil.NewRawRequest(http.MethodPost, "/language-tests/convert", `{"testType":`))
	testutil.AssertError(t, rr, http.StatusBadRequest, "bad_request")
}
