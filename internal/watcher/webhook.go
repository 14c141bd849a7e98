package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"sitewatch/internal/logging"
)

// WebhookStatusError is a webhook response outside the 2xx range. Only
// this error class is retried; transport failures are not.
type WebhookStatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *WebhookStatusError) Error() string {
	return fmt.Sprintf("webhook %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Notifier delivers the one-line phrase alert to the configured webhook
// with bounded retry.
type Notifier struct {
	cfg    WebhookConfig
	client *http.Client
	logger logging.Logger

	// sleep is swapped in tests so retry timing is deterministic.
	sleep func(time.Duration)
}

// NewNotifier builds a Notifier. RetryAttempts below 1 behaves as 1.
func NewNotifier(cfg WebhookConfig, logger logging.Logger) *Notifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(logging.Field{Key: "component", Value: "webhook"}),
		sleep:  time.Sleep,
	}
}

// Send posts {"message": "Phrase \"<phrase>\" found in content. Line: <line>"}
// to the webhook URL. Non-2xx responses are retried up to the configured
// attempt count with a fixed wait between attempts; the final error is
// returned to the caller once attempts are exhausted.
func (n *Notifier) Send(ctx context.Context, phrase, line string) error {
	attempts := n.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	n.logger.Info("sending webhook",
		logging.Field{Key: "url", Value: n.cfg.URL},
		logging.Field{Key: "phrase", Value: phrase},
		logging.Field{Key: "line", Value: line})

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := n.post(ctx, phrase, line)
		if err == nil {
			return nil
		}

		var statusErr *WebhookStatusError
		if !errors.As(err, &statusErr) {
			// Transport-level failure: not retried.
			return err
		}

		lastErr = err
		n.logger.Warn("webhook attempt failed",
			logging.Field{Key: "attempt", Value: attempt},
			logging.Field{Key: "status", Value: statusErr.StatusCode},
			logging.Field{Key: "error", Value: err.Error()})

		if attempt < attempts {
			n.sleep(n.cfg.RetryWait)
		}
	}
	return lastErr
}

func (n *Notifier) post(ctx context.Context, phrase, line string) error {
	payload := map[string]string{
		"message": fmt.Sprintf("Phrase %q found in content. Line: %s", phrase, line),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	n.logger.Debug("webhook response",
		logging.Field{Key: "status", Value: resp.StatusCode},
		logging.Field{Key: "body", Value: string(respBody)})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &WebhookStatusError{
			URL:        n.cfg.URL,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}
	return nil
}
