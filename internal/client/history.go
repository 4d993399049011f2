// Package client talks to a running cardlogd: the REST snapshot and the
// WebSocket push channel.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/b0ase/cardlog/internal/model"
)

// HistoryClient reads /api endpoints.
type HistoryClient struct {
	base string
	http *http.Client
}

// NewHistoryClient targets a server such as http://127.0.0.1:5000.
func NewHistoryClient(serverURL string, hc *http.Client) *HistoryClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &HistoryClient{base: strings.TrimRight(serverURL, "/"), http: hc}
}

type logsResponse struct {
	Logs  []model.LogRecord `json:"logs"`
	Count int               `json:"count"`
}

// RecentLogs returns up to limit records, newest first.
func (c *HistoryClient) RecentLogs(ctx context.Context, limit int) ([]model.LogRecord, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	var out logsResponse
	if err := c.get(ctx, "/api/logs?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

// Stats is the /api/stats payload.
type Stats struct {
	TotalScans  int `json:"total_scans"`
	UniqueUsers int `json:"unique_users"`
	TodayScans  int `json:"today_scans"`
}

// Stats fetches server-side counters.
func (c *HistoryClient) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.get(ctx, "/api/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Healthy reports whether /api/health answers 200.
func (c *HistoryClient) Healthy(ctx context.Context) bool {
	var out map[string]any
	return c.get(ctx, "/api/health", &out) == nil
}

func (c *HistoryClient) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
