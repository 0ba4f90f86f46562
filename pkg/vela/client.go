// Package vela provides a Go SDK for the vela-server backtest API. It is
// self-contained: the request and response types here mirror the server's
// wire format without importing server internals.
package vela

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client provides a Go SDK for interacting with the vela-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// PollInterval is how often WaitForResult polls a running backtest.
	PollInterval time.Duration
}

// NewClient creates a new vela API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		PollInterval: 500 * time.Millisecond,
	}
}

// SubmitBacktest submits a backtest configuration and returns the run ID.
// The run executes asynchronously on the server.
func (c *Client) SubmitBacktest(ctx context.Context, cfg BacktestConfig) (string, error) {
	var ack struct {
		ID     string `json:"id"`
		Status Status `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/backtests", nil, cfg, &ack); err != nil {
		return "", err
	}
	return ack.ID, nil
}

// GetBacktest retrieves a finished backtest result by ID. While the run is
// still in flight the server answers with a progress snapshot instead; use
// GetStatus for that, or WaitForResult to block until completion.
func (c *Client) GetBacktest(ctx context.Context, id string) (*BacktestResult, error) {
	var res BacktestResult
	if err := c.do(ctx, http.MethodGet, "/api/backtests/"+id, nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetStatus retrieves the progress snapshot of a run. Finished runs decode
// with their terminal status and zero progress fields.
func (c *Client) GetStatus(ctx context.Context, id string) (*RunStatus, error) {
	var st RunStatus
	if err := c.do(ctx, http.MethodGet, "/api/backtests/"+id, nil, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// WaitForResult polls the run until it reaches a terminal status and returns
// the stored result. It respects ctx for cancellation and deadlines.
func (c *Client) WaitForResult(ctx context.Context, id string) (*BacktestResult, error) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		st, err := c.GetStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if st.Status.Terminal() {
			// The tracker may briefly still hold the run; the result
			// endpoint serves the full payload once it lands.
			return c.GetBacktest(ctx, id)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ListBacktests returns summaries of stored results, newest first. A limit
// of 0 returns everything.
func (c *Client) ListBacktests(ctx context.Context, limit int) ([]ResultSummary, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Results []ResultSummary `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/backtests", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// DeleteBacktest removes a stored result.
func (c *Client) DeleteBacktest(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/backtests/"+id, nil, nil, nil)
}

// CancelBacktest requests cancellation of a running backtest. The partial
// result is retrievable once the run winds down.
func (c *Client) CancelBacktest(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/backtests/"+id+"/cancel", nil, nil, nil)
}

// ListStrategies returns the registered strategies with their parameter
// schemas.
func (c *Client) ListStrategies(ctx context.Context) ([]StrategyInfo, error) {
	var out struct {
		Strategies []StrategyInfo `json:"strategies"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/strategies", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Strategies, nil
}

// ListSymbols returns the symbols available in the server's bar store.
func (c *Client) ListSymbols(ctx context.Context) ([]string, error) {
	var out struct {
		Symbols []string `json:"symbols"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/symbols", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Symbols, nil
}

// GetBars retrieves daily bars for a symbol within [start, end]. Zero times
// are omitted and the server applies its defaults.
func (c *Client) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	q := url.Values{}
	if !start.IsZero() {
		q.Set("start", start.Format(time.RFC3339))
	}
	if !end.IsZero() {
		q.Set("end", end.Format(time.RFC3339))
	}
	var out struct {
		Bars []Bar `json:"bars"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/bars/"+symbol, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Bars, nil
}

// do performs one request-response cycle: marshal body, send, map non-2xx to
// APIError, decode into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
