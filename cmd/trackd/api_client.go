package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/omerbl/trackd/internal/engine"
	"github.com/omerbl/trackd/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// gatewayClient implements engine.Gateway against a running trackd daemon.
type gatewayClient struct {
	base   string
	client *http.Client
}

func newGatewayClient(base string) *gatewayClient {
	return &gatewayClient{
		base:   base,
		client: &http.Client{Timeout: DefaultClientTimeout},
	}
}

// do performs one request and returns the response body. Statuses >= 400 are
// turned into errors; a 409 maps to engine.ErrAlreadyRunning so callers can
// branch on the conflict.
func (c *gatewayClient) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusConflict {
		return nil, fmt.Errorf("%w", engine.ErrAlreadyRunning)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// StartEntry implements engine.Gateway.
func (c *gatewayClient) StartEntry(ctx context.Context, req engine.StartRequest) (*models.TimeEntry, error) {
	body, err := c.do(ctx, http.MethodPost, "/entries", req)
	if err != nil {
		return nil, err
	}
	var entry models.TimeEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, fmt.Errorf("parse entry: %w", err)
	}
	return &entry, nil
}

// UpdateEntry implements engine.Gateway.
func (c *gatewayClient) UpdateEntry(ctx context.Context, id string, patch models.EntryPatch) (*models.TimeEntry, error) {
	body, err := c.do(ctx, http.MethodPatch, "/entries/"+id, patch)
	if err != nil {
		return nil, err
	}
	var entry models.TimeEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, fmt.Errorf("parse entry: %w", err)
	}
	return &entry, nil
}

// DeleteEntry implements engine.Gateway.
func (c *gatewayClient) DeleteEntry(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/entries/"+id, nil)
	return err
}

// RunningEntry implements engine.Gateway. A 404 means no running entry.
func (c *gatewayClient) RunningEntry(ctx context.Context, ownerID string) (*models.TimeEntry, error) {
	path := "/entries/running?owner=" + url.QueryEscape(ownerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var entry models.TimeEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, fmt.Errorf("parse entry: %w", err)
	}
	return &entry, nil
}

// EntriesSince implements engine.Gateway.
func (c *gatewayClient) EntriesSince(ctx context.Context, ownerID string, since time.Time) ([]models.TimeEntry, error) {
	path := "/entries?owner=" + url.QueryEscape(ownerID) + "&since=" + url.QueryEscape(since.Format(time.RFC3339))
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var entries []models.TimeEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parse entries: %w", err)
	}
	return entries, nil
}

// CompletedMinutesSince implements engine.Gateway.
func (c *gatewayClient) CompletedMinutesSince(ctx context.Context, ownerID string, since time.Time) (int64, error) {
	path := "/entries/minutes?owner=" + url.QueryEscape(ownerID) + "&since=" + url.QueryEscape(since.Format(time.RFC3339))
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	var result map[string]int64
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("parse minutes: %w", err)
	}
	return result["minutes"], nil
}

// PutProfile uploads the owner profile to the daemon.
func (c *gatewayClient) PutProfile(ctx context.Context, p models.Profile) error {
	_, err := c.do(ctx, http.MethodPut, "/profiles/"+url.QueryEscape(p.OwnerID), p)
	return err
}

// Summary fetches the combined today/week totals.
func (c *gatewayClient) Summary(ctx context.Context, ownerID string) (*models.Summary, error) {
	body, err := c.do(ctx, http.MethodGet, "/entries/summary?owner="+url.QueryEscape(ownerID), nil)
	if err != nil {
		return nil, err
	}
	var summary models.Summary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("parse summary: %w", err)
	}
	return &summary, nil
}
