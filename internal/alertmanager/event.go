// Package alertmanager models the Alertmanager webhook payload and its
// two supported envelope shapes: a direct JSON object, or a queue
// message carrying base64-encoded JSON under a "data" field.
//
// Validation is strict and all-or-nothing: a malformed batch is rejected
// whole, never partially populated.
// https://prometheus.io/docs/alerting/latest/notifications/#data-structures
package alertmanager

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ValidationError is a structurally malformed event batch. The caller
// drops the whole batch and reports it; there is no partial recovery.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid alertmanager event: " + e.Reason
}

// Labels identify and categorize an alert. The whole block is optional.
type Labels struct {
	Alertname *string `json:"alertname"`
	Instance  *string `json:"instance"`
	Severity  *string `json:"severity"`
}

// Annotations carry free-form additional information.
type Annotations struct {
	Description *string `json:"description"`
	Summary     *string `json:"summary"`
}

// Alert is a single alert within a batch. Labels, Annotations and
// GeneratorURL are pointers so "field was absent" stays distinguishable
// from "field was empty".
type Alert struct {
	Status       string       `json:"status"`
	Labels       *Labels      `json:"labels"`
	Annotations  *Annotations `json:"annotations"`
	StartsAt     string       `json:"startsAt"`
	EndsAt       string       `json:"endsAt"`
	GeneratorURL *string      `json:"generatorURL"`
	Fingerprint  string       `json:"fingerprint"`
}

// NotionStatus normalizes the raw status for the ticketing store's
// select field: first letter upper-cased, the rest lowered
// ("firing" -> "Firing", "RESOLVED" -> "Resolved").
func (a Alert) NotionStatus() string {
	if a.Status == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(a.Status)
	return string(unicode.ToUpper(r)) + strings.ToLower(a.Status[size:])
}

// AlertName returns the alertname label when present.
func (a Alert) AlertName() (string, bool) {
	if a.Labels == nil || a.Labels.Alertname == nil {
		return "", false
	}
	return *a.Labels.Alertname, true
}

// Event is the batch envelope Alertmanager posts to webhooks.
type Event struct {
	Receiver          string            `json:"receiver"`
	Status            string            `json:"status"`
	Alerts            []Alert           `json:"alerts"`
	GroupLabels       map[string]string `json:"groupLabels"`
	CommonLabels      map[string]string `json:"commonLabels"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`
	ExternalURL       string            `json:"externalURL"`
	Version           string            `json:"version"`
	GroupKey          string            `json:"groupKey"`
	TruncatedAlerts   int               `json:"truncatedAlerts"`
}

// Validate checks the structural contract. Group/common maps and the
// per-alert optional blocks may be absent; everything else is required.
func (e *Event) Validate() error {
	switch {
	case e.Receiver == "":
		return &ValidationError{Reason: "missing receiver"}
	case e.Status == "":
		return &ValidationError{Reason: "missing status"}
	case e.Alerts == nil:
		return &ValidationError{Reason: "missing alerts"}
	case e.Version == "":
		return &ValidationError{Reason: "missing version"}
	case e.GroupKey == "":
		return &ValidationError{Reason: "missing groupKey"}
	}
	for i, a := range e.Alerts {
		switch {
		case a.Status == "":
			return &ValidationError{Reason: fmt.Sprintf("alert %d: missing status", i)}
		case a.Fingerprint == "":
			return &ValidationError{Reason: fmt.Sprintf("alert %d: missing fingerprint", i)}
		case a.StartsAt == "":
			return &ValidationError{Reason: fmt.Sprintf("alert %d: missing startsAt", i)}
		case a.EndsAt == "":
			return &ValidationError{Reason: fmt.Sprintf("alert %d: missing endsAt", i)}
		}
	}
	return nil
}

// Decode parses a trigger payload into a validated Event. The payload is
// either the event object itself or a {"data": "<base64 JSON>"} queue
// envelope; the envelope form is detected, not assumed.
func Decode(payload []byte) (*Event, error) {
	body := payload

	var envelope struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Data != "" {
		decoded, err := base64.StdEncoding.DecodeString(envelope.Data)
		if err != nil {
			return nil, &ValidationError{Reason: "data field is not base64: " + err.Error()}
		}
		body = decoded
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, &ValidationError{Reason: "not a JSON event: " + err.Error()}
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}
