// Package notion is the client for the external ticketing store: page
// lookup by alert fingerprint, status updates, incident creation, and
// the duty-roster query. Property names are fixed string constants —
// they are the external schema contract.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sitewatch/internal/alertmanager"
	"sitewatch/internal/logging"
)

// External schema contract.
const (
	propTitle       = "Name"
	propFingerprint = "AMFingerprint"
	propStatus      = "AMStatus"
	propTimeframe   = "Incident Timeframe"
	propPayload     = "AMPayload"
	propDutyShift   = "Duty Shift"
	propResponsible = "Responsible"

	rosterDateProperty   = "Date"
	rosterPeopleProperty = "On Duty"

	statusResolved = "Resolved"

	defaultBaseURL = "https://api.notion.com"
	defaultVersion = "2022-06-28"
)

// APIError is a non-2xx or transport-level failure talking to the
// ticketing API. Not retried at this layer; the reconciler logs it and
// moves to the next alert.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion API error [%s %s]: status=%d body=%s", e.Method, e.URL, e.StatusCode, e.Body)
}

// RosterConfig configures duty-roster resolution.
type RosterConfig struct {
	Enabled    bool
	DatabaseID string

	// ShiftTypeProperty/Value add an equals filter on top of the date
	// filter. Both must be non-empty for the filter to apply.
	ShiftTypeProperty string
	ShiftTypeValue    string
}

// Config holds ticketing API settings.
type Config struct {
	Token      string
	DatabaseID string
	BaseURL    string // defaults to the public API; overridden in tests
	Version    string
	Timeout    time.Duration
	Roster     RosterConfig
}

// Shift is a resolved duty-roster assignment. A zero value means no
// shift was found (or resolution is disabled).
type Shift struct {
	ID     string
	People []string
}

// Client talks to the ticketing REST API.
type Client struct {
	cfg    Config
	client *http.Client
	logger logging.Logger
}

// NewClient builds a Client with config defaults filled in.
func NewClient(cfg Config, logger logging.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(logging.Field{Key: "component", Value: "notion"}),
	}
}

// FindPageByFingerprint queries the incident database for an exact
// fingerprint match and returns the first result's page id, or "" when
// the fingerprint is unknown.
func (c *Client) FindPageByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	body := map[string]any{
		"filter": map[string]any{
			"property":  propFingerprint,
			"rich_text": map[string]any{"equals": fingerprint},
		},
	}

	resp, err := c.query(ctx, c.cfg.DatabaseID, body)
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		c.logger.Info("fingerprint not found",
			logging.Field{Key: "fingerprint", Value: fingerprint})
		return "", nil
	}

	c.logger.Info("fingerprint found",
		logging.Field{Key: "fingerprint", Value: fingerprint},
		logging.Field{Key: "page_id", Value: resp.Results[0].ID})
	return resp.Results[0].ID, nil
}

// UpdatePageStatus sets the status select to the alert's normalized
// status. Only when that status is "Resolved" does the incident
// timeframe get its end set, from the alert's endsAt.
func (c *Client) UpdatePageStatus(ctx context.Context, pageID string, alert alertmanager.Alert) error {
	status := alert.NotionStatus()
	properties := map[string]any{
		propStatus: map[string]any{"select": map[string]any{"name": status}},
	}
	if status == statusResolved {
		properties[propTimeframe] = map[string]any{
			"date": map[string]any{"start": alert.StartsAt, "end": alert.EndsAt},
		}
	}

	url := fmt.Sprintf("%s/v1/pages/%s", c.cfg.BaseURL, pageID)
	if _, err := c.do(ctx, http.MethodPatch, url, map[string]any{"properties": properties}); err != nil {
		return err
	}

	c.logger.Info("updated page status",
		logging.Field{Key: "page_id", Value: pageID},
		logging.Field{Key: "status", Value: status})
	return nil
}

// CreatePageFromAlert creates a new incident page. The timeframe starts
// at the alert's startsAt with an open end. Duty fields are attached
// only when a shift was resolved.
func (c *Client) CreatePageFromAlert(ctx context.Context, alert alertmanager.Alert, shift Shift) error {
	title, ok := alert.AlertName()
	if !ok || title == "" {
		title = alert.Fingerprint
	}

	detail, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert detail: %w", err)
	}

	properties := map[string]any{
		propTitle: map[string]any{
			"title": []any{map[string]any{"text": map[string]any{"content": title}}},
		},
		propFingerprint: map[string]any{
			"rich_text": []any{map[string]any{"text": map[string]any{"content": alert.Fingerprint}}},
		},
		propStatus: map[string]any{"select": map[string]any{"name": alert.NotionStatus()}},
		propTimeframe: map[string]any{
			"date": map[string]any{"start": alert.StartsAt, "end": nil},
		},
		propPayload: map[string]any{
			"rich_text": []any{map[string]any{"text": map[string]any{"content": string(detail)}}},
		},
	}

	if shift.ID != "" {
		properties[propDutyShift] = map[string]any{
			"relation": []any{map[string]any{"id": shift.ID}},
		}
		people := make([]any, 0, len(shift.People))
		for _, id := range shift.People {
			people = append(people, map[string]any{"id": id})
		}
		properties[propResponsible] = map[string]any{"people": people}
	}

	body := map[string]any{
		"parent":     map[string]any{"database_id": c.cfg.DatabaseID},
		"properties": properties,
	}
	if _, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/pages", body); err != nil {
		return err
	}

	c.logger.Info("created page for alert",
		logging.Field{Key: "fingerprint", Value: alert.Fingerprint},
		logging.Field{Key: "duty_shift", Value: shift.ID})
	return nil
}

// queryResponse is the subset of the database-query response we read.
type queryResponse struct {
	Results []struct {
		ID         string `json:"id"`
		Properties map[string]struct {
			Type   string `json:"type"`
			People []struct {
				ID string `json:"id"`
			} `json:"people"`
		} `json:"properties"`
	} `json:"results"`
}

func (c *Client) query(ctx context.Context, databaseID string, body map[string]any) (*queryResponse, error) {
	url := fmt.Sprintf("%s/v1/databases/%s/query", c.cfg.BaseURL, databaseID)
	respBody, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}

	var resp queryResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Notion-Version", c.cfg.Version)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &APIError{Method: method, URL: url, StatusCode: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: string(respBody)}
		c.logger.Error("notion API error",
			logging.Field{Key: "method", Value: method},
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "status", Value: resp.StatusCode},
			logging.Field{Key: "body", Value: string(respBody)})
		return nil, apiErr
	}
	return respBody, nil
}
