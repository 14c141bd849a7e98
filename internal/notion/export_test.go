package notion

import "time"

// SetNow swaps the resolver's clock in tests.
func (r *RosterResolver) SetNow(f func() time.Time) { r.now = f }
