// Package client converts scores on the form side. Each conversion asks the
// server's convert endpoint; when the server cannot answer, the client
// converts locally against the server's cached table or the embedded one,
// so conversion keeps working offline.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"immimate/internal/clb"
	"immimate/internal/clb/source"
	"immimate/internal/platform/config"
	"immimate/pkg/platform/sentinel"
)

const (
	conversionsPath = "/api/language-tests/conversions"
	convertPath     = "/api/language-tests/convert"
)

// remoteSource loads the table from GET /api/language-tests/conversions.
type remoteSource struct {
	baseURL string
	http    *http.Client
}

func (s *remoteSource) Load(ctx context.Context) (*clb.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+conversionsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build conversions request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch conversions: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch conversions: status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var table clb.Table
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return nil, fmt.Errorf("decode conversions: %w: %w", sentinel.ErrMalformed, err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &table, nil
}

// Client resolves conversions against the server table, cached for the
// configured TTL, or the embedded fallback.
type Client struct {
	baseURL  string
	source   source.Source
	fallback *clb.Engine
	logger   *slog.Logger

	ttl     time.Duration
	timeout time.Duration
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.ttl = ttl
	}
}

// WithTimeout bounds each table fetch.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New builds a client for the server at baseURL. An empty baseURL makes the
// client fallback-only.
func New(baseURL string, logger *slog.Logger, opts ...Option) (*Client, error) {
	fallback, err := clb.DefaultEngine()
	if err != nil {
		return nil, fmt.Errorf("load fallback table: %w", err)
	}
	c := &Client{
		fallback: fallback,
		logger:   logger,
		ttl:      config.ConversionCacheTTL,
		timeout:  5 * time.Second,
		http:     &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
		remote := &remoteSource{baseURL: c.baseURL, http: c.http}
		c.source = source.NewCached(remote, c.ttl, source.WithLogger(logger))
	}
	return c, nil
}

// Engine returns an engine over the server table, or the fallback.
func (c *Client) Engine(ctx context.Context) *clb.Engine {
	if c.source == nil {
		return c.fallback
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	table, err := c.source.Load(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "using embedded clb table", "error", err)
		return c.fallback
	}
	engine, err := clb.NewEngine(table)
	if err != nil {
		return c.fallback
	}
	if table.Fingerprint() != c.fallback.Table().Fingerprint() {
		c.logger.WarnContext(ctx, "server clb table differs from embedded table",
			"last_updated", table.LastUpdated(),
		)
	}
	return engine
}

// Convert looks up the level of one score. The server's answer is final,
// including "no level"; local tables are consulted only when the server is
// unreachable, times out, or fails.
func (c *Client) Convert(ctx context.Context, test clb.TestType, skill clb.Skill, raw clb.RawScore) (clb.Level, bool) {
	if c.baseURL == "" {
		return c.fallback.Convert(test, skill, raw)
	}
	if raw.IsZero() {
		return 0, false
	}
	level, err := c.convertRemote(ctx, test, skill, raw)
	switch {
	case err == nil:
		return level, true
	case errors.Is(err, sentinel.ErrNotFound):
		return 0, false
	}
	c.logger.WarnContext(ctx, "server conversion failed, converting locally",
		"test_type", test,
		"skill", skill,
		"error", err,
	)
	return c.Engine(ctx).Convert(test, skill, raw)
}

// convertRemote calls GET /api/language-tests/convert. A conversion miss or
// a rejected score is ErrNotFound; anything else is ErrUnavailable or
// ErrMalformed.
func (c *Client) convertRemote(ctx context.Context, test clb.TestType, skill clb.Skill, raw clb.RawScore) (clb.Level, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("testType", string(test))
	q.Set("skill", string(skill))
	q.Set("score", raw.Value())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+convertPath+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build convert request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("convert: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read convert response: %w: %w", sentinel.ErrUnavailable, err)
	}

	code := gjson.GetBytes(body, "error").String()
	switch {
	case resp.StatusCode == http.StatusOK:
		level := gjson.GetBytes(body, "clbLevel")
		if !level.Exists() || !clb.Level(level.Int()).Valid() {
			return 0, fmt.Errorf("convert response without a level: %w", sentinel.ErrMalformed)
		}
		return clb.Level(level.Int()), nil
	case resp.StatusCode == http.StatusNotFound && code == "conversion_miss",
		resp.StatusCode == http.StatusBadRequest && code == "validation_error":
		return 0, fmt.Errorf("convert: %s: %w", code, sentinel.ErrNotFound)
	default:
		return 0, fmt.Errorf("convert: status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
}

// Tables returns the table conversions currently run against.
func (c *Client) Tables(ctx context.Context) *clb.Table {
	return c.Engine(ctx).Table()
}

// Options lists valid score labels for every test and skill.
func (c *Client) Options(ctx context.Context) map[clb.TestType]map[clb.Skill][]string {
	return c.Tables(ctx).Options()
}

// RangeDescription describes the score span of test.
func (c *Client) RangeDescription(ctx context.Context, test clb.TestType) string {
	return c.Tables(ctx).RangeDescription(test)
}
