package client

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immimate/internal/clb"
	"immimate/internal/clb/handler"
	"immimate/internal/clb/service"
	"immimate/internal/clb/source"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// pathCounter counts requests per path.
type pathCounter struct {
	mu   sync.Mutex
	hits map[string]int
}

func (p *pathCounter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		if p.hits == nil {
			p.hits = map[string]int{}
		}
		p.hits[r.URL.Path]++
		p.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (p *pathCounter) count(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[path]
}

// newServer serves the real conversion API. A non-nil override replaces
// everything except GET /conversions.
func newServer(t *testing.T, hits *pathCounter, override func(r chi.Router)) *httptest.Server {
	t.Helper()
	svc := service.New(source.Embedded{}, quietLogger())
	r := chi.NewRouter()
	r.Use(hits.middleware)
	h := handler.New(svc, quietLogger())
	r.Route("/api", func(r chi.Router) {
		if override == nil {
			h.Register(r)
			return
		}
		r.Get("/language-tests/conversions", h.HandleConversions)
		override(r)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientConvertsThroughServer(t *testing.T) {
	var hits pathCounter
	srv := newServer(t, &hits, nil)

	c, err := New(srv.URL, quietLogger(), WithCacheTTL(time.Hour))
	require.NoError(t, err)

	level, ok := c.Convert(context.Background(), clb.IELTS, clb.Speaking, clb.Scalar("7.0"))
	require.True(t, ok)
	assert.Equal(t, clb.Level(9), level)

	level, ok = c.Convert(context.Background(), clb.PTE, clb.Reading, clb.Labelled("45", "45 points"))
	require.True(t, ok)
	assert.Equal(t, clb.Level(4), level)

	assert.Equal(t, 2, hits.count(convertPath))
	assert.Zero(t, hits.count(conversionsPath), "the table is only needed when the server cannot convert")
}

func TestClientTreatsServerMissAsFinal(t *testing.T) {
	var hits pathCounter
	srv := newServer(t, &hits, nil)

	c, err := New(srv.URL, quietLogger())
	require.NoError(t, err)

	_, ok := c.Convert(context.Background(), clb.TEF, clb.Writing, clb.Scalar("999"))
	assert.False(t, ok)
	_, ok = c.Convert(context.Background(), clb.IELTS, clb.Writing, clb.Scalar(""))
	assert.False(t, ok)

	assert.Equal(t, 1, hits.count(convertPath))
	assert.Zero(t, hits.count(conversionsPath))
}

func TestClientConvertsLocallyWhenServerCannot(t *testing.T) {
	tests := []struct {
		name    string
		convert http.HandlerFunc
	}{
		{name: "server error", convert: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}},
		{name: "timeout", convert: func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}},
		{name: "garbage body", convert: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"clbLevel":"high"}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits pathCounter
			srv := newServer(t, &hits, func(r chi.Router) {
				r.Get("/language-tests/convert", tt.convert)
			})

			c, err := New(srv.URL, quietLogger(), WithTimeout(200*time.Millisecond))
			require.NoError(t, err)

			level, ok := c.Convert(context.Background(), clb.TCF, clb.Speaking, clb.Scalar("550"))
			require.True(t, ok)
			assert.Equal(t, clb.Level(5), level)
			assert.Equal(t, 1, hits.count(convertPath))
			assert.Equal(t, 1, hits.count(conversionsPath), "falls back to the server table first")
		})
	}
}

func TestClientFallsBackWhenServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(srv.URL, quietLogger())
	require.NoError(t, err)

	level, ok := c.Convert(context.Background(), clb.TCF, clb.Speaking, clb.Scalar("550"))
	require.True(t, ok)
	assert.Equal(t, clb.Level(5), level)
	assert.Equal(t, "Score range: 101-1200", c.RangeDescription(context.Background(), clb.TCF))
}

func TestClientFallsBackOnInvalidTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tests": map[string]any{"CELPIP": map[string]any{"speaking": map[string]int{"1": 1}}},
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL, quietLogger())
	require.NoError(t, err)

	fallback, err := clb.DefaultTable()
	require.NoError(t, err)
	assert.Equal(t, fallback.Fingerprint(), c.Tables(context.Background()).Fingerprint())
}

func TestClientWithoutServer(t *testing.T) {
	c, err := New("", quietLogger())
	require.NoError(t, err)

	_, ok := c.Convert(context.Background(), clb.TEF, clb.Writing, clb.Scalar("999"))
	assert.False(t, ok)
	assert.Len(t, c.Options(context.Background())[clb.CELPIP][clb.Speaking], 12)
}

func TestServerAndFallbackAgreeOnEveryOption(t *testing.T) {
	var hits pathCounter
	srv := newServer(t, &hits, nil)

	remote, err := New(srv.URL, quietLogger())
	require.NoError(t, err)
	offline, err := New("", quietLogger())
	require.NoError(t, err)

	ctx := context.Background()
	for test, skills := range offline.Options(ctx) {
		for skill, labels := range skills {
			for _, label := range labels {
				a, okA := remote.Convert(ctx, test, skill, clb.Scalar(label))
				b, okB := offline.Convert(ctx, test, skill, clb.Scalar(label))
				assert.Equal(t, okB, okA, "%s %s %s", test, skill, label)
				assert.Equal(t, b, a, "%s %s %s", test, skill, label)
			}
		}
	}
}
