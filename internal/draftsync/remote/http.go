// Package remote talks to the server's draft API on behalf of a
// draftsync.Manager.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"immimate/internal/draftsync"
	"immimate/pkg/platform/sentinel"
)

const draftPath = "/api/profiles/draft"

// maxBody caps how much of a draft response is read.
const maxBody = 4 << 20

// TokenFunc returns the bearer token of the signed-in user.
type TokenFunc func(ctx context.Context) (string, error)

// StaticToken always returns token.
func StaticToken(token string) TokenFunc {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// Client implements draftsync.RemoteStore over HTTP.
type Client struct {
	baseURL string
	token   TokenFunc
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func New(baseURL string, token TokenFunc, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the user's latest draft. A 404, a 401 or a response without
// form data all mean there is no draft.
func (c *Client) Fetch(ctx context.Context) (*draftsync.Record, error) {
	body, status, err := c.do(ctx, http.MethodGet, draftPath, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound, status == http.StatusUnauthorized:
		return nil, fmt.Errorf("fetch draft: status %d: %w", status, sentinel.ErrNotFound)
	case status >= 500:
		return nil, fmt.Errorf("fetch draft: status %d: %w", status, sentinel.ErrUnavailable)
	case status != http.StatusOK:
		return nil, fmt.Errorf("fetch draft: unexpected status %d", status)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("fetch draft: %w", sentinel.ErrMalformed)
	}
	if !gjson.GetBytes(body, "success").Bool() {
		return nil, fmt.Errorf("fetch draft: unsuccessful response: %w", sentinel.ErrNotFound)
	}
	data := gjson.GetBytes(body, "formData")
	if !data.IsObject() {
		// Older servers used "data".
		data = gjson.GetBytes(body, "data")
	}
	if !data.IsObject() {
		return nil, fmt.Errorf("fetch draft: no form data: %w", sentinel.ErrNotFound)
	}
	fields, ok := data.Value().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("fetch draft: form data is not an object: %w", sentinel.ErrMalformed)
	}
	rec, err := draftsync.RecordFromWire(fields)
	if err != nil {
		return nil, fmt.Errorf("fetch draft: %w", err)
	}
	return &rec, nil
}

// Push saves rec as the user's latest draft.
func (c *Client) Push(ctx context.Context, rec draftsync.Record) error {
	payload, err := json.Marshal(rec.Wire())
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	body, status, err := c.do(ctx, http.MethodPost, draftPath, payload)
	if err != nil {
		return err
	}
	if err := checkWrite("push draft", status); err != nil {
		return err
	}
	if !gjson.GetBytes(body, "success").Bool() {
		return fmt.Errorf("push draft: server reported failure: %s", gjson.GetBytes(body, "error").String())
	}
	return nil
}

// Discard deletes the server draft for formID.
func (c *Client) Discard(ctx context.Context, formID string) error {
	path := draftPath + "?formId=" + url.QueryEscape(formID)
	_, status, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	return checkWrite("discard draft", status)
}

func checkWrite(op string, status int) error {
	switch {
	case status == http.StatusOK, status == http.StatusNoContent:
		return nil
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	case status >= 500:
		return fmt.Errorf("%s: status %d: %w", op, status, sentinel.ErrUnavailable)
	default:
		return fmt.Errorf("%s: unexpected status %d", op, status)
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build draft request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("draft request token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("%s %s: %w: %w", method, path, sentinel.ErrTimeout, err)
		}
		return nil, 0, fmt.Errorf("%s %s: %w: %w", method, path, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read draft response: %w: %w", sentinel.ErrUnavailable, err)
	}
	return body, resp.StatusCode, nil
}
