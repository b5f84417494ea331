// Package rest delivers record batches to a PostgREST endpoint (as exposed
// by Supabase) and reads row counts back for verification.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/storm-data-seeder/internal/domain"
)

const (
	headerAPIKey        = "apikey"
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerPrefer        = "Prefer"
	headerContentRange  = "Content-Range"

	preferMergeDuplicates = "resolution=merge-duplicates"
	preferCountExact      = "count=exact"
	contentTypeJSON       = "application/json"
)

// Client talks to the /rest/v1 API of a single project. Credentials are sent
// as headers and never logged.
type Client struct {
	baseURL    string
	apiKey     string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Client. ratePerSecond <= 0 disables client-side pacing.
func NewClient(baseURL, apiKey, token string, timeout time.Duration, ratePerSecond float64, logger *slog.Logger) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/rest/v1",
		apiKey:     apiKey,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	if ratePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return c
}

// Insert posts rows to table as a JSON array with merge-duplicates conflict
// resolution on conflictKey. 200 and 201 report OutcomeInserted; 409 reports
// OutcomeMerged and is treated as success for the whole batch.
func (c *Client) Insert(ctx context.Context, table, conflictKey string, rows any) (domain.Outcome, error) {
	body, err := json.Marshal(rows)
	if err != nil {
		return 0, fmt.Errorf("encode batch: %w", err)
	}

	u := c.tableURL(table)
	if conflictKey != "" {
		u += "?" + url.Values{"on_conflict": {conflictKey}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerPrefer, preferMergeDuplicates)

	resp, err := c.do(ctx, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.OutcomeInserted, nil
	case http.StatusConflict:
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.OutcomeMerged, nil
	default:
		return 0, &domain.RejectionError{Status: resp.StatusCode, Body: snippet(resp.Body)}
	}
}

// Count returns the number of rows in table matching filter. The total is
// read from the Content-Range header, or from the length of the returned
// array when the header is missing. Errors are *domain.VerificationError.
func (c *Client) Count(ctx context.Context, table, selectColumn string, filter domain.Filter) (int64, error) {
	n, err := c.count(ctx, table, selectColumn, filter)
	if err != nil {
		return 0, &domain.VerificationError{Err: err}
	}
	return n, nil
}

func (c *Client) count(ctx context.Context, table, selectColumn string, filter domain.Filter) (int64, error) {
	params := url.Values{"select": {selectColumn}}
	if !filter.IsZero() {
		params.Set(filter.Column, "eq."+filter.Value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tableURL(table)+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set(headerPrefer, preferCountExact)

	resp, err := c.do(ctx, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return 0, &domain.RejectionError{Status: resp.StatusCode, Body: snippet(resp.Body)}
	}

	if total, ok := parseContentRange(resp.Header.Get(headerContentRange)); ok {
		_, _ = io.Copy(io.Discard, resp.Body)
		return total, nil
	}

	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return int64(len(rows)), nil
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &domain.TransportError{Err: err}
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Err: err}
	}
	c.logger.Debug("rest response", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)
	return resp, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set(headerAuthorization, "Bearer "+c.token)
}

func (c *Client) tableURL(table string) string {
	return c.baseURL + "/" + url.PathEscape(table)
}

// parseContentRange extracts the total from "0-24/3573" or "*/0".
func parseContentRange(v string) (int64, bool) {
	_, total, found := strings.Cut(v, "/")
	if !found || total == "*" {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func snippet(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, domain.DiagnosticLimit*4))
	if err != nil && len(b) == 0 {
		return err.Error()
	}
	return domain.Truncate(string(b), domain.DiagnosticLimit)
}
