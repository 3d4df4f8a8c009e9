// Package client provides the typed HTTP client for the remote journal
// service. It covers exactly the endpoints the sync core consumes and
// classifies failures into fatal (client error) and transient
// (network/server error) per task.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tai-cha/tainy-tune/internal/types"
)

// APIError is an HTTP-level failure from the remote service.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("remote returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("remote returned %d", e.Status)
}

// Fatal reports whether retrying the same payload can ever succeed.
// Statuses in [400,500) are permanent rejections; everything else
// (5xx, timeouts, connection failures) is worth another cycle.
func (e *APIError) Fatal() bool {
	return e.Status >= 400 && e.Status < 500
}

// IsFatal reports whether err is a non-retriable remote rejection.
// Network errors without an HTTP response are never fatal.
func IsFatal(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Fatal()
}

// Client talks to the journal service.
type Client struct {
	baseURL  string
	apiKey   string
	clientID string
	http     *http.Client
}

// New creates a Client for the given base URL. Each process gets a fresh
// ULID instance id, sent as X-Client-ID so the server can attribute
// ownership of client-created entries.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		clientID: ulid.Make().String(),
		http:     &http.Client{Timeout: timeout},
	}
}

// ClientID returns the per-process instance id.
func (c *Client) ClientID() string {
	return c.clientID
}

// Ping checks reachability of the remote service.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// PublicSettings fetches GET /api/settings/public.
func (c *Client) PublicSettings(ctx context.Context) (*types.PublicSettings, error) {
	var settings types.PublicSettings
	if err := c.do(ctx, http.MethodGet, "/api/settings/public", nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// CreateJournal posts a new entry. The entry id must already be set by the
// caller; the server treats a replayed id as an idempotent no-op and
// returns the existing record.
func (c *Client) CreateJournal(ctx context.Context, entry types.JournalEntry) (*types.JournalEntry, error) {
	var created types.JournalEntry
	if err := c.do(ctx, http.MethodPost, "/api/journal", entry, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateJournal puts the full entry state to the per-entry endpoint.
func (c *Client) UpdateJournal(ctx context.Context, id string, entry types.JournalEntry) (*types.JournalEntry, error) {
	var updated types.JournalEntry
	if err := c.do(ctx, http.MethodPut, "/api/journals/"+url.PathEscape(id), entry, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteJournal deletes the entry on the server.
func (c *Client) DeleteJournal(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/journals/"+url.PathEscape(id), nil, nil)
}

// ListJournals fetches entries matching params. A nil UpdatedAfter fetches
// everything the server has.
func (c *Client) ListJournals(ctx context.Context, params types.ListParams) ([]types.JournalEntry, error) {
	query := url.Values{}
	if params.UpdatedAfter != nil {
		query.Set("updatedAfter", params.UpdatedAfter.UTC().Format(time.RFC3339Nano))
	}
	if params.StartDate != nil {
		query.Set("startDate", params.StartDate.UTC().Format(time.RFC3339Nano))
	}
	if params.EndDate != nil {
		query.Set("endDate", params.EndDate.UTC().Format(time.RFC3339Nano))
	}
	if params.Search != "" {
		query.Set("search", params.Search)
	}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		query.Set("offset", strconv.Itoa(params.Offset))
	}

	path := "/api/journals"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var entries []types.JournalEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// do sends an authenticated JSON request and decodes the response into out.
// Non-2xx responses become *APIError carrying the status and the problem
// detail when the server provided one.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("X-Client-ID", c.clientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Detail: problemDetail(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// problemDetail extracts the detail field from an RFC 7807 body, if any.
func problemDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}

	var problem struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &problem); err != nil {
		return ""
	}
	return problem.Detail
}
