// Package testutil provides shared test doubles for use across package
// tests. All dummies implement the corresponding interfaces from the
// production code, allowing injection into components under test without
// real I/O or side effects.
package testutil

import (
	"context"
	"net/http"
	"sync"
	"time"

	"sitewatch/internal/alertmanager"
	"sitewatch/internal/fetch"
	"sitewatch/internal/logging"
	"sitewatch/internal/notion"
	"sitewatch/internal/snapshot"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements fetch.WebClient. Responses are looked up by
// URL; unknown URLs return status 200 with body "ok:<url>". DoFunc, when
// set, overrides everything.
type DummyWebClient struct {
	mu        sync.Mutex
	Responses map[string]*fetch.Response
	DoFunc    func(ctx context.Context, req *fetch.Request) (*fetch.Response, error)
	Requests  []*fetch.Request
}

func (c *DummyWebClient) Do(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	c.mu.Lock()
	c.Requests = append(c.Requests, req)
	c.mu.Unlock()

	if c.DoFunc != nil {
		return c.DoFunc(ctx, req)
	}
	if resp, ok := c.Responses[req.URL]; ok {
		resp.Request = req
		return resp, nil
	}
	return &fetch.Response{
		Request:    req,
		Body:       []byte("ok:" + req.URL),
		StatusCode: http.StatusOK,
		FetchedAt:  time.Now(),
	}, nil
}

func (c *DummyWebClient) Close() error { return nil }

// SetBody registers a 200 response with the given body for url.
func (c *DummyWebClient) SetBody(url, body string) {
	if c.Responses == nil {
		c.Responses = make(map[string]*fetch.Response)
	}
	c.Responses[url] = &fetch.Response{Body: []byte(body), StatusCode: http.StatusOK}
}

// ─── SnapshotStore ─────────────────────────────────────────────────────

// DummySnapshotStore implements watcher.SnapshotStore in memory.
type DummySnapshotStore struct {
	mu        sync.Mutex
	Appended  []*snapshot.Snapshot
	Cutoffs   []time.Time
	AppendErr error
	RecentErr error
}

func (s *DummySnapshotStore) Append(ctx context.Context, snap *snapshot.Snapshot) error {
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Appended = append(s.Appended, snap)
	return nil
}

func (s *DummySnapshotStore) MostRecent(ctx context.Context, url string) (*snapshot.Snapshot, error) {
	if s.RecentErr != nil {
		return nil, s.RecentErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *snapshot.Snapshot
	for _, snap := range s.Appended {
		if snap.URL != url {
			continue
		}
		if latest == nil || snap.Timestamp.After(latest.Timestamp) {
			latest = snap
		}
	}
	return latest, nil
}

func (s *DummySnapshotStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cutoffs = append(s.Cutoffs, cutoff)
	var kept []*snapshot.Snapshot
	var deleted int64
	for _, snap := range s.Appended {
		if snap.Timestamp.After(cutoff) {
			kept = append(kept, snap)
		} else {
			deleted++
		}
	}
	s.Appended = kept
	return deleted, nil
}

// ─── Sender ────────────────────────────────────────────────────────────

// SentNotification records one Send call.
type SentNotification struct {
	Phrase string
	Line   string
}

// DummySender implements watcher.Sender.
type DummySender struct {
	mu      sync.Mutex
	Sent    []SentNotification
	SendErr error
}

func (d *DummySender) Send(ctx context.Context, phrase, line string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Sent = append(d.Sent, SentNotification{Phrase: phrase, Line: line})
	return d.SendErr
}

// ─── RecordStore / ShiftResolver ───────────────────────────────────────

// DummyRecordStore implements reconciler.RecordStore. Pages maps
// fingerprint to page id for lookups.
type DummyRecordStore struct {
	mu      sync.Mutex
	Pages   map[string]string
	Updated []string              // page ids passed to UpdatePageStatus
	Created []alertmanager.Alert  // alerts passed to CreatePageFromAlert
	Shifts  []notion.Shift        // shifts passed to CreatePageFromAlert
	Updates []alertmanager.Alert  // alerts passed to UpdatePageStatus
	Lookups []string              // fingerprints looked up

	FindErr   error
	UpdateErr error
	CreateErr error
}

func (d *DummyRecordStore) FindPageByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Lookups = append(d.Lookups, fingerprint)
	if d.FindErr != nil {
		return "", d.FindErr
	}
	return d.Pages[fingerprint], nil
}

func (d *DummyRecordStore) UpdatePageStatus(ctx context.Context, pageID string, alert alertmanager.Alert) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.UpdateErr != nil {
		return d.UpdateErr
	}
	d.Updated = append(d.Updated, pageID)
	d.Updates = append(d.Updates, alert)
	return nil
}

func (d *DummyRecordStore) CreatePageFromAlert(ctx context.Context, alert alertmanager.Alert, shift notion.Shift) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.CreateErr != nil {
		return d.CreateErr
	}
	d.Created = append(d.Created, alert)
	d.Shifts = append(d.Shifts, shift)
	return nil
}

// DummyShiftResolver implements reconciler.ShiftResolver.
type DummyShiftResolver struct {
	Shift notion.Shift
	Calls int
}

func (d *DummyShiftResolver) ResolveTodaysShift(ctx context.Context) notion.Shift {
	d.Calls++
	return d.Shift
}
