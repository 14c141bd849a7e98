// Package watcher implements the website-change pipeline: fetch current
// content, diff against the last stored snapshot, notify when the target
// phrase appears in newly added lines, persist the new snapshot.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sitewatch/internal/fetch"
	"sitewatch/internal/logging"
	"sitewatch/internal/snapshot"
)

// FetchError is a non-2xx response while fetching target content. The
// response body is embedded for diagnostics.
type FetchError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("can't get data for url=%s, status=%d, body=%s", e.URL, e.StatusCode, e.Body)
}

// SnapshotStore is the persistence the watcher needs.
type SnapshotStore interface {
	Append(ctx context.Context, snap *snapshot.Snapshot) error
	MostRecent(ctx context.Context, url string) (*snapshot.Snapshot, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sender delivers phrase-found notifications.
type Sender interface {
	Send(ctx context.Context, phrase, line string) error
}

// Watcher runs the check cycle over all configured targets.
type Watcher struct {
	cfg      Config
	store    SnapshotStore
	client   fetch.WebClient
	rendered fetch.WebClient // optional, used for Render targets
	notifier Sender
	logger   logging.Logger

	// now is swapped in tests.
	now func() time.Time
}

// New wires a Watcher. rendered may be nil; Render targets then fall
// back to the plain client.
func New(cfg Config, store SnapshotStore, client fetch.WebClient, rendered fetch.WebClient, notifier Sender, logger logging.Logger) (*Watcher, error) {
	if store == nil {
		return nil, fmt.Errorf("watcher: nil snapshot store")
	}
	if client == nil {
		return nil, fmt.Errorf("watcher: nil webclient")
	}
	if notifier == nil {
		return nil, fmt.Errorf("watcher: nil notifier")
	}
	return &Watcher{
		cfg:      cfg,
		store:    store,
		client:   client,
		rendered: rendered,
		notifier: notifier,
		logger:   logger.With(logging.Field{Key: "component", Value: "watcher"}),
		now:      time.Now,
	}, nil
}

// Run executes one full check cycle: every configured target in order,
// each isolated (one target's failure is logged and the loop continues),
// then retention cleanup.
func (w *Watcher) Run(ctx context.Context) {
	for _, target := range w.cfg.Targets {
		if err := w.CheckTarget(ctx, target); err != nil {
			w.logger.Error("error on check for target",
				logging.Field{Key: "url", Value: target.URL},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}

	if err := w.Cleanup(ctx); err != nil {
		w.logger.Error("snapshot cleanup failed",
			logging.Field{Key: "error", Value: err.Error()})
	}
}

// RunTarget handles one trigger event. The payload may carry
// {"url": "..."} to check a single configured target; a payload without
// a url (the periodic timer publishes "{}") runs the full cycle instead.
// An unknown url is an error: the ingress layer only publishes
// configured targets, so a miss here means the watch list changed
// between publish and delivery.
func (w *Watcher) RunTarget(ctx context.Context, payload []byte) error {
	var trigger struct {
		URL string `json:"url"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &trigger); err != nil {
			return fmt.Errorf("decode trigger payload: %w", err)
		}
	}

	if trigger.URL == "" {
		w.Run(ctx)
		return nil
	}

	for _, target := range w.cfg.Targets {
		if target.URL == trigger.URL {
			w.logger.Info("single-target trigger",
				logging.Field{Key: "url", Value: trigger.URL})
			return w.CheckTarget(ctx, target)
		}
	}
	return fmt.Errorf("watcher: no configured target for url %s", trigger.URL)
}

// CheckTarget runs the cycle for a single target: fetch, diff against
// the previous snapshot (absent means empty — everything is "added" on
// first run), notify on a phrase hit, then append the new snapshot. A
// notify failure aborts the target before persistence, so the next cycle
// sees the same diff again.
func (w *Watcher) CheckTarget(ctx context.Context, target Target) error {
	content, err := w.fetchContent(ctx, target)
	if err != nil {
		return err
	}

	last, err := w.store.MostRecent(ctx, target.URL)
	if err != nil {
		return fmt.Errorf("load last snapshot for %s: %w", target.URL, err)
	}
	lastContent := ""
	if last != nil {
		lastContent = last.Content
	}

	lines := Diff(lastContent, content)
	if matched, ok := FindPhrase(lines, target.PhraseToFind); ok {
		w.logger.Info("found phrase in added line",
			logging.Field{Key: "url", Value: target.URL},
			logging.Field{Key: "line", Value: matched})
		if err := w.notifier.Send(ctx, target.PhraseToFind, matched); err != nil {
			return fmt.Errorf("notify for %s: %w", target.URL, err)
		}
	} else {
		w.logger.Info("no phrase match in diff",
			logging.Field{Key: "url", Value: target.URL},
			logging.Field{Key: "diff_lines", Value: len(lines)})
	}

	snap := &snapshot.Snapshot{
		URL:       target.URL,
		Timestamp: w.now().UTC(),
		Content:   content,
		Diff:      strings.Join(RenderAll(lines), "\n"),
	}
	if err := w.store.Append(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot for %s: %w", target.URL, err)
	}
	return nil
}

// Cleanup bulk-deletes snapshots older than the retention window,
// anchored to "now" in the configured timezone.
func (w *Watcher) Cleanup(ctx context.Context) error {
	loc, err := time.LoadLocation(w.cfg.Timezone)
	if err != nil {
		w.logger.Warn("invalid timezone, falling back to UTC",
			logging.Field{Key: "timezone", Value: w.cfg.Timezone})
		loc = time.UTC
	}

	retention := w.cfg.RetentionDays
	if retention <= 0 {
		retention = 15
	}

	cutoff := w.now().In(loc).AddDate(0, 0, -retention)
	_, err = w.store.DeleteOlderThan(ctx, cutoff)
	return err
}

func (w *Watcher) fetchContent(ctx context.Context, target Target) (string, error) {
	client := w.client
	if target.Render && w.rendered != nil {
		client = w.rendered
	}

	headers := http.Header{}
	for k, v := range target.CustomHeaders {
		headers.Set(k, v)
	}

	w.logger.Info("getting website content",
		logging.Field{Key: "url", Value: target.URL},
		logging.Field{Key: "render", Value: target.Render})

	resp, err := client.Do(ctx, &fetch.Request{
		Method:  http.MethodGet,
		URL:     target.URL,
		Headers: headers,
	})
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", target.URL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &FetchError{
			URL:        target.URL,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}
	}

	content := string(resp.Body)
	if target.ExtractText {
		content, err = ExtractText(content)
		if err != nil {
			return "", fmt.Errorf("extract text for %s: %w", target.URL, err)
		}
	}
	return content, nil
}
