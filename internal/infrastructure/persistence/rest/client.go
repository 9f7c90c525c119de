// Package rest implements the result store over a PostgREST-compatible data API.
package rest

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
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/httpclient"
)

const (
	preferRepresentation = "return=representation"
	preferMinimal        = "return=minimal"
	preferCountExact     = "count=exact"
	preferMergeUpsert    = "resolution=merge-duplicates,return=minimal"

	codeUniqueViolation = "23505"
	maxErrorBody        = 4 << 10
)

// APIError carries a non-2xx answer of the data API.
type APIError struct {
	Status int
	Code   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("data api returned %d: %s", e.Status, e.Body)
}

func isUniqueViolation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.Code == codeUniqueViolation || apiErr.Status == http.StatusConflict)
}

// Client talks to one data API. The same key is sent as apikey and bearer token.
type Client struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
}

// NewClient creates a client for baseURL (without the /rest/v1 suffix).
func NewClient(baseURL, apiKey string, httpClient *retryablehttp.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/rest/v1/",
		apiKey:  apiKey,
		http:    httpClient,
	}
}

type request struct {
	method string
	table  string
	query  url.Values
	body   interface{}
	prefer string
}

// do sends the request and decodes a JSON answer into out when out is not nil.
func (c *Client) do(ctx context.Context, r request, out interface{}) (http.Header, error) {
	endpoint := c.baseURL + r.table
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", r.table, err)
		}
		body = bytes.NewReader(payload)
	}

	// Inserts are not idempotent: a 5xx from a gateway may follow a committed row.
	if r.method == http.MethodPost {
		ctx = httpclient.DialRetryOnly(ctx)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("data api %s %s: %w", r.method, r.table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		var payload struct {
			Code string `json:"code"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Code = payload.Code
		}
		return nil, apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", r.table, err)
		}
	}

	return resp.Header, nil
}

// Ping checks that the API answers with the configured key.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, request{
		method: http.MethodGet,
		table:  "url_master",
		query:  url.Values{"select": {"id"}, "limit": {"1"}},
	}, nil)
	return err
}

// totalFromContentRange parses "0-24/3573" or "*/0".
func totalFromContentRange(header http.Header) (int64, error) {
	raw := header.Get("Content-Range")
	_, total, ok := strings.Cut(raw, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("content-range without total: %q", raw)
	}
	return strconv.ParseInt(total, 10, 64)
}
