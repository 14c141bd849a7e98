package notion

import (
	"context"
	"time"

	"sitewatch/internal/logging"
)

// RosterResolver finds today's on-call assignment in the duty-roster
// database. Resolution is best-effort: a query failure is logged and
// treated as "no shift found" — it must never block incident creation.
type RosterResolver struct {
	client *Client
	cfg    RosterConfig
	logger logging.Logger

	// now is swapped in tests.
	now func() time.Time
}

// NewRosterResolver builds a resolver on top of an existing Client.
func NewRosterResolver(client *Client, cfg RosterConfig, logger logging.Logger) *RosterResolver {
	return &RosterResolver{
		client: client,
		cfg:    cfg,
		logger: logger.With(logging.Field{Key: "component", Value: "roster"}),
		now:    time.Now,
	}
}

// ResolveTodaysShift returns today's shift assignment. When roster
// support is disabled a zero Shift is returned without any external
// call. The filter matches the UTC date exactly, plus the configured
// shift-type attribute when both its name and value are set. At most the
// first matching record is used; which one that is when several match is
// the external store's ordering, not ours.
func (r *RosterResolver) ResolveTodaysShift(ctx context.Context) Shift {
	if !r.cfg.Enabled {
		return Shift{}
	}

	today := r.now().UTC().Format("2006-01-02")
	dateFilter := map[string]any{
		"property": rosterDateProperty,
		"date":     map[string]any{"equals": today},
	}

	var filter map[string]any
	if r.cfg.ShiftTypeProperty != "" && r.cfg.ShiftTypeValue != "" {
		filter = map[string]any{
			"and": []any{
				dateFilter,
				map[string]any{
					"property": r.cfg.ShiftTypeProperty,
					"select":   map[string]any{"equals": r.cfg.ShiftTypeValue},
				},
			},
		}
	} else {
		filter = dateFilter
	}

	resp, err := r.client.query(ctx, r.cfg.DatabaseID, map[string]any{
		"filter":    filter,
		"page_size": 1,
	})
	if err != nil {
		r.logger.Warn("duty roster query failed, continuing without shift",
			logging.Field{Key: "date", Value: today},
			logging.Field{Key: "error", Value: err.Error()})
		return Shift{}
	}
	if len(resp.Results) == 0 {
		r.logger.Info("no shift found for today",
			logging.Field{Key: "date", Value: today})
		return Shift{}
	}

	page := resp.Results[0]
	shift := Shift{ID: page.ID}
	if prop, ok := page.Properties[rosterPeopleProperty]; ok && prop.Type == "people" {
		for _, p := range prop.People {
			shift.People = append(shift.People, p.ID)
		}
	}

	r.logger.Info("resolved today's shift",
		logging.Field{Key: "date", Value: today},
		logging.Field{Key: "shift_id", Value: shift.ID},
		logging.Field{Key: "people", Value: len(shift.People)})
	return shift
}
