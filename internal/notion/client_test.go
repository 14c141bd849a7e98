package notion_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"sitewatch/internal/alertmanager"
	"sitewatch/internal/notion"
	"sitewatch/internal/testutil"
)

// recordedRequest captures one call against the fake ticketing API.
type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeAPI is an httptest-backed stand-in for the ticketing REST API.
type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest

	queryResults string // JSON for the "results" array
	status       int
}

func newFakeAPI(queryResults string) *fakeAPI {
	return &fakeAPI{queryResults: queryResults, status: http.StatusOK}
}

func (f *fakeAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
		f.mu.Unlock()

		if f.status != http.StatusOK {
			http.Error(w, "nope", f.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/query") {
			io.WriteString(w, `{"results": `+f.queryResults+`}`)
			return
		}
		io.WriteString(w, `{"id": "new-page"}`)
	})
}

func (f *fakeAPI) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest{}, f.requests...)
}

func newTestClient(t *testing.T, api *fakeAPI) (*notion.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	client := notion.NewClient(notion.Config{
		Token:      "secret-token",
		DatabaseID: "incidents-db",
		BaseURL:    srv.URL,
	}, &testutil.DummyLogger{})
	return client, srv
}

func properties(t *testing.T, req recordedRequest) map[string]any {
	t.Helper()
	props, ok := req.Body["properties"].(map[string]any)
	if !ok {
		t.Fatalf("request %s %s has no properties: %v", req.Method, req.Path, req.Body)
	}
	return props
}

func TestFindPageByFingerprintReturnsFirstResult(t *testing.T) {
	api := newFakeAPI(`[{"id": "page-1"}, {"id": "page-2"}]`)
	client, _ := newTestClient(t, api)

	id, err := client.FindPageByFingerprint(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("FindPageByFingerprint: %v", err)
	}
	if id != "page-1" {
		t.Errorf("id = %q, want %q", id, "page-1")
	}

	reqs := api.recorded()
	if len(reqs) != 1 || reqs[0].Path != "/v1/databases/incidents-db/query" {
		t.Fatalf("unexpected requests: %+v", reqs)
	}
	filter := reqs[0].Body["filter"].(map[string]any)
	if filter["property"] != "AMFingerprint" {
		t.Errorf("filter property = %v", filter["property"])
	}
}

func TestFindPageByFingerprintEmptyResults(t *testing.T) {
	api := newFakeAPI(`[]`)
	client, _ := newTestClient(t, api)

	id, err := client.FindPageByFingerprint(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("FindPageByFingerprint: %v", err)
	}
	if id != "" {
		t.Errorf("id = %q, want empty", id)
	}
}

func TestUpdatePageStatusResolvedSetsTimeframeEnd(t *testing.T) {
	api := newFakeAPI(`[]`)
	client, _ := newTestClient(t, api)

	alert := alertmanager.Alert{
		Status:      "resolved",
		StartsAt:    "2025-06-08T07:00:00Z",
		EndsAt:      "2025-06-11T19:44:45.277Z",
		Fingerprint: "abc123",
	}
	if err := client.UpdatePageStatus(context.Background(), "page-1", alert); err != nil {
		t.Fatalf("UpdatePageStatus: %v", err)
	}

	reqs := api.recorded()
	if len(reqs) != 1 || reqs[0].Method != http.MethodPatch || reqs[0].Path != "/v1/pages/page-1" {
		t.Fatalf("unexpected requests: %+v", reqs)
	}
	props := properties(t, reqs[0])

	status := props["AMStatus"].(map[string]any)["select"].(map[string]any)["name"]
	if status != "Resolved" {
		t.Errorf("status = %v, want Resolved", status)
	}
	timeframe, ok := props["Incident Timeframe"].(map[string]any)
	if !ok {
		t.Fatal("Incident Timeframe missing from resolved update")
	}
	date := timeframe["date"].(map[string]any)
	if date["end"] != "2025-06-11T19:44:45.277Z" {
		t.Errorf("timeframe end = %v", date["end"])
	}
}

func TestUpdatePageStatusFiringOmitsTimeframe(t *testing.T) {
	api := newFakeAPI(`[]`)
	client, _ := newTestClient(t, api)

	alert := alertmanager.Alert{
		Status:      "firing",
		StartsAt:    "2025-06-08T07:00:00Z",
		EndsAt:      "0001-01-01T00:00:00Z",
		Fingerprint: "abc123",
	}
	if err := client.UpdatePageStatus(context.Background(), "page-1", alert); err != nil {
		t.Fatalf("UpdatePageStatus: %v", err)
	}

	props := properties(t, api.recorded()[0])
	if _, ok := props["Incident Timeframe"]; ok {
		t.Error("Incident Timeframe must not be present for a firing update")
	}
}

func TestCreatePageFromAlertWithShift(t *testing.T) {
	api := newFakeAPI(`[]`)
	client, _ := newTestClient(t, api)

	name := "TestAlert"
	alert := alertmanager.Alert{
		Status:      "firing",
		Labels:      &alertmanager.Labels{Alertname: &name},
		StartsAt:    "2025-06-08T07:00:00Z",
		EndsAt:      "0001-01-01T00:00:00Z",
		Fingerprint: "abc123",
	}
	shift := notion.Shift{ID: "shift-1", People: []string{"user-1", "user-2"}}

	if err := client.CreatePageFromAlert(context.Background(), alert, shift); err != nil {
		t.Fatalf("CreatePageFromAlert: %v", err)
	}

	reqs := api.recorded()
	if len(reqs) != 1 || reqs[0].Method != http.MethodPost || reqs[0].Path != "/v1/pages" {
		t.Fatalf("unexpected requests: %+v", reqs)
	}
	if parent := reqs[0].Body["parent"].(map[string]any); parent["database_id"] != "incidents-db" {
		t.Errorf("parent = %v", parent)
	}

	props := properties(t, reqs[0])
	timeframe := props["Incident Timeframe"].(map[string]any)["date"].(map[string]any)
	if timeframe["start"] != "2025-06-08T07:00:00Z" {
		t.Errorf("timeframe start = %v", timeframe["start"])
	}
	if timeframe["end"] != nil {
		t.Errorf("timeframe end = %v, want null", timeframe["end"])
	}

	relation := props["Duty Shift"].(map[string]any)["relation"].([]any)
	if len(relation) != 1 || relation[0].(map[string]any)["id"] != "shift-1" {
		t.Errorf("duty relation = %v", relation)
	}
	people := props["Responsible"].(map[string]any)["people"].([]any)
	if len(people) != 2 {
		t.Errorf("responsible people = %v", people)
	}
	if _, ok := props["AMPayload"]; !ok {
		t.Error("serialized alert detail missing")
	}
}

func TestCreatePageFromAlertWithoutShiftOmitsDutyFields(t *testing.T) {
	api := newFakeAPI(`[]`)
	client, _ := newTestClient(t, api)

	alert := alertmanager.Alert{
		Status:      "firing",
		StartsAt:    "2025-06-08T07:00:00Z",
		EndsAt:      "0001-01-01T00:00:00Z",
		Fingerprint: "abc123",
	}
	if err := client.CreatePageFromAlert(context.Background(), alert, notion.Shift{}); err != nil {
		t.Fatalf("CreatePageFromAlert: %v", err)
	}

	props := properties(t, api.recorded()[0])
	if _, ok := props["Duty Shift"]; ok {
		t.Error("duty relation must be absent without a resolved shift")
	}
	if _, ok := props["Responsible"]; ok {
		t.Error("responsible people must be absent without a resolved shift")
	}
	// No alertname label: title falls back to the fingerprint.
	title := props["Name"].(map[string]any)["title"].([]any)
	content := title[0].(map[string]any)["text"].(map[string]any)["content"]
	if content != "abc123" {
		t.Errorf("title = %v, want fingerprint fallback", content)
	}
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	api := newFakeAPI(`[]`)
	api.status = http.StatusBadRequest
	client, _ := newTestClient(t, api)

	_, err := client.FindPageByFingerprint(context.Background(), "abc")
	var apiErr *notion.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", apiErr.StatusCode)
	}
}
