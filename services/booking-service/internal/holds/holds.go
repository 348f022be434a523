package holds

import "time"

// Hold is a short-lived, advisory reservation placed while a customer is
// mid-checkout. Holds block slot generation but are never trusted as the
// booking-safety mechanism; the commit transaction re-validates. A hold
// past ExpiresAt is inert: every reader filters it out, it is not
// eagerly deleted.
type Hold struct {
	ID        string    `json:"id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	StaffID   *string   `json:"staff_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Source    string    `json:"source,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// MaxPerOrg caps the hold list per organization; placing beyond the cap
// evicts the oldest entries.
const MaxPerOrg = 200

func (h Hold) ActiveAt(now time.Time) bool {
	return h.ExpiresAt.After(now)
}

// Blocks reports whether the hold blocks [start, end) for the given
// staff member. A nil staff on either side means "any staff". Interval
// comparison is half-open.
func (h Hold) Blocks(start, end time.Time, staffID *string) bool {
	if h.StaffID != nil && staffID != nil && *h.StaffID != *staffID {
		return false
	}
	return h.Start.Before(end) && start.Before(h.End)
}

// FilterActive drops expired holds. The input is not modified.
func FilterActive(list []Hold, now time.Time) []Hold {
	out := make([]Hold, 0, len(list))
	for _, h := range list {
		if h.ActiveAt(now) {
			out = append(out, h)
		}
	}
	return out
}

// IsHeld reports whether any active hold blocks [start, end) for the
// given staff scope.
func IsHeld(list []Hold, start, end time.Time, staffID *string, now time.Time) bool {
	for _, h := range list {
		if h.ActiveAt(now) && h.Blocks(start, end, staffID) {
			return true
		}
	}
	return false
}
