// Package reconciler converts incoming alert batches into create/update
// decisions against the external ticketing store: look up each alert by
// fingerprint, update the matching record's status, or create a new
// record with an optional duty-roster assignment.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"sitewatch/internal/alertmanager"
	"sitewatch/internal/logging"
	"sitewatch/internal/notion"
)

// RecordStore is the ticketing surface the reconciler needs.
type RecordStore interface {
	FindPageByFingerprint(ctx context.Context, fingerprint string) (string, error)
	UpdatePageStatus(ctx context.Context, pageID string, alert alertmanager.Alert) error
	CreatePageFromAlert(ctx context.Context, alert alertmanager.Alert, shift notion.Shift) error
}

// ShiftResolver finds today's on-call assignment.
type ShiftResolver interface {
	ResolveTodaysShift(ctx context.Context) notion.Shift
}

// Reconciler processes alert batches.
type Reconciler struct {
	store  RecordStore
	roster ShiftResolver
	logger logging.Logger
}

// New wires a Reconciler.
func New(store RecordStore, roster ShiftResolver, logger logging.Logger) (*Reconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("reconciler: nil record store")
	}
	if roster == nil {
		return nil, fmt.Errorf("reconciler: nil shift resolver")
	}
	return &Reconciler{
		store:  store,
		roster: roster,
		logger: logger.With(logging.Field{Key: "component", Value: "reconciler"}),
	}, nil
}

// Reconcile validates the incoming payload and processes each alert in
// input order. A malformed batch is dropped whole with zero store calls.
// Store failures abort only the affected alert; the loop continues.
// Alerts sharing a fingerprint within one batch are not deduplicated —
// the second one sees the first's write only if the external store is
// immediately consistent, which is not guaranteed.
func (r *Reconciler) Reconcile(ctx context.Context, payload []byte) error {
	event, err := alertmanager.Decode(payload)
	if err != nil {
		var verr *alertmanager.ValidationError
		if errors.As(err, &verr) {
			r.logger.Error("dropping malformed alert batch",
				logging.Field{Key: "error", Value: verr.Error()})
			return err
		}
		return err
	}

	r.logger.Info("processing alert batch",
		logging.Field{Key: "receiver", Value: event.Receiver},
		logging.Field{Key: "status", Value: event.Status},
		logging.Field{Key: "alerts", Value: len(event.Alerts)})

	for _, alert := range event.Alerts {
		if err := r.reconcileAlert(ctx, alert); err != nil {
			r.logger.Error("alert processing failed, continuing",
				logging.Field{Key: "fingerprint", Value: alert.Fingerprint},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}

	r.logger.Info("finished alert batch")
	return nil
}

func (r *Reconciler) reconcileAlert(ctx context.Context, alert alertmanager.Alert) error {
	pageID, err := r.store.FindPageByFingerprint(ctx, alert.Fingerprint)
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}

	if pageID != "" {
		if err := r.store.UpdatePageStatus(ctx, pageID, alert); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		return nil
	}

	shift := r.roster.ResolveTodaysShift(ctx)
	if err := r.store.CreatePageFromAlert(ctx, alert, shift); err != nil {
		return fmt.Errorf("create: %w", err)
	}
	return nil
}
