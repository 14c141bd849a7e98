package watcher

import (
	"encoding/json"
	"fmt"
	"time"
)

// Target is one URL + phrase configuration unit. Immutable for the
// duration of a run.
type Target struct {
	URL           string            `json:"url"`
	PhraseToFind  string            `json:"phrase_to_find"`
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`

	// Render fetches through the headless backend instead of plain HTTP.
	Render bool `json:"render,omitempty"`

	// ExtractText strips markup before diffing, so template noise does
	// not drown the content change.
	ExtractText bool `json:"extract_text,omitempty"`
}

// WebhookConfig configures the notification webhook.
type WebhookConfig struct {
	URL           string
	Headers       map[string]string
	Timeout       time.Duration
	RetryAttempts int
	RetryWait     time.Duration
}

// Config holds all watcher settings.
type Config struct {
	Targets []Target
	Webhook WebhookConfig

	// RetentionDays is the snapshot retention window for cleanup.
	RetentionDays int

	// Timezone anchors "now" for retention cleanup.
	Timezone string
}

// ParseTargets decodes the WATCH_TARGETS JSON document:
// {"targets": [{"url": "https://example.com", "phrase_to_find": "phrase"}]}.
func ParseTargets(raw string) ([]Target, error) {
	var doc struct {
		Targets []Target `json:"targets"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parse targets: %w", err)
	}
	for i, t := range doc.Targets {
		if t.URL == "" {
			return nil, fmt.Errorf("parse targets: target %d has empty url", i)
		}
		if t.PhraseToFind == "" {
			return nil, fmt.Errorf("parse targets: target %d (%s) has empty phrase_to_find", i, t.URL)
		}
	}
	return doc.Targets, nil
}
