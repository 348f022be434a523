package storage

import (
	"testing"
	"time"

	"github.com/arifhasnat/bookwell/services/booking-service/internal/availability"
)

func at(h, m int) time.Time {
	return time.Date(2026, 2, 2, h, m, 0, 0, time.UTC)
}

// The conflict query compares the buffered candidate window against each
// existing appointment's buffered interval. These cases pin the window
// math by replaying the query's predicate over availability's interval
// algebra.
func TestBufferedConflictWindow(t *testing.T) {
	cases := []struct {
		name                 string
		candStart, candEnd   time.Time
		existStart, existEnd time.Time
		before, after        int
		conflict             bool
	}{
		{
			// With only an after-buffer, the candidate's widened tail
			// must still collide with a later appointment's start.
			name:      "after buffer widens the candidate",
			candStart: at(9, 10), candEnd: at(10, 0),
			existStart: at(10, 10), existEnd: at(11, 10),
			after:    15,
			conflict: true,
		},
		{
			name:      "buffered edges touching is not a conflict",
			candStart: at(9, 10), candEnd: at(9, 55),
			existStart: at(10, 10), existEnd: at(11, 10),
			after:    15,
			conflict: false,
		},
		{
			name:      "before buffer reaches back into an earlier appointment",
			candStart: at(10, 30), candEnd: at(11, 0),
			existStart: at(9, 0), existEnd: at(10, 25),
			before:   10,
			conflict: true,
		},
		{
			name:      "no buffers, adjacent appointments coexist",
			candStart: at(10, 0), candEnd: at(11, 0),
			existStart: at(9, 0), existEnd: at(10, 0),
			conflict: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			winStart, winEnd := bufferedConflictWindow(tc.candStart, tc.candEnd, tc.before, tc.after)
			existing := availability.Interval{Start: tc.existStart, End: tc.existEnd}.
				Pad(time.Duration(tc.before)*time.Minute, time.Duration(tc.after)*time.Minute)

			got := existing.Overlaps(availability.Interval{Start: winStart, End: winEnd})
			if got != tc.conflict {
				t.Fatalf("conflict = %v, want %v (window [%s, %s) vs existing [%s, %s))",
					got, tc.conflict, winStart.Format("15:04"), winEnd.Format("15:04"),
					existing.Start.Format("15:04"), existing.End.Format("15:04"))
			}
		})
	}
}
