package availability

import (
	"sort"
	"time"
)

// Slot is a candidate bookable interval [Start, End) for one staff member.
type Slot struct {
	Start   time.Time
	End     time.Time
	StaffID string
}

// DayWindow is an organization's opening window for one weekday, as
// minutes of the local day.
type DayWindow struct {
	OpenMinute  int
	CloseMinute int
}

// ScheduleRow is one staff working block for a weekday. A staff member
// may have several rows per weekday; overlapping rows are unioned.
type ScheduleRow struct {
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
}

// Hold is an active checkout hold. A nil StaffID blocks every staff
// member.
type Hold struct {
	Interval
	StaffID *string
}

// Inputs carries everything Generate needs. All temporal fields are
// interpreted in Loc; From and To are midnights of the first and last
// day (inclusive) in that location.
type Inputs struct {
	From time.Time
	To   time.Time
	Loc  *time.Location
	Now  time.Time

	Duration      time.Duration
	SlotInterval  time.Duration
	LeadTime      time.Duration
	BufferBefore  time.Duration
	BufferAfter   time.Duration
	AllowOverlaps bool

	Hours     map[time.Weekday]DayWindow
	StaffIDs  []string                 // iteration order, deterministic
	Schedules map[string][]ScheduleRow // staffID -> weekly rows

	Holidays map[string]struct{} // "2006-01-02" keys in Loc

	// Appointments holds confirmed (non-cancelled) busy intervals per
	// staff member, unbuffered.
	Appointments map[string][]Interval

	// ExternalBusy blocks time org-wide; buffers do not apply to it.
	ExternalBusy []Interval

	Holds []Hold // pre-filtered to active
}

// Generate computes bookable slots day by day, staff by staff:
// intersect the org opening window with each staff schedule row, step
// candidate starts at the slot interval, and drop candidates that fall
// inside the lead-time horizon or overlap a busy source. The result is
// sorted by start time; ties keep staff iteration order.
func Generate(in Inputs) []Slot {
	if in.Duration <= 0 || in.SlotInterval <= 0 {
		return nil
	}
	loc := in.Loc
	if loc == nil {
		loc = time.UTC
	}

	durMin := int(in.Duration / time.Minute)
	stepMin := int(in.SlotInterval / time.Minute)
	earliest := in.Now.Add(in.LeadTime)

	var slots []Slot
	for day := in.From; !day.After(in.To); day = day.AddDate(0, 0, 1) {
		if _, holiday := in.Holidays[day.Format("2006-01-02")]; holiday {
			continue
		}
		window, open := in.Hours[day.Weekday()]
		if !open || window.CloseMinute <= window.OpenMinute {
			continue
		}

		for _, staffID := range in.StaffIDs {
			rows := rowsFor(in.Schedules[staffID], day.Weekday())
			if len(rows) == 0 {
				continue
			}
			busy := in.Appointments[staffID]

			// Overlapping schedule rows would emit the same start twice;
			// union by tracking emitted cursors for this staff/day.
			seen := map[int]struct{}{}

			for _, row := range rows {
				openMin := max(window.OpenMinute, row.StartMinute)
				closeMin := min(window.CloseMinute, row.EndMinute)
				if closeMin-openMin < durMin {
					continue
				}

				// Align the cursor up to the next interval boundary so
				// odd opening times don't drift the whole grid.
				for cursor := alignUp(openMin, stepMin); cursor+durMin <= closeMin; cursor += stepMin {
					if _, dup := seen[cursor]; dup {
						continue
					}
					start := time.Date(day.Year(), day.Month(), day.Day(), 0, cursor, 0, 0, loc)
					end := start.Add(in.Duration)

					// Lead time is measured against the slot start, so
					// slots age out as the clock advances.
					if start.Before(earliest) {
						continue
					}
					cand := Interval{Start: start, End: end}
					if in.blocked(cand, staffID, busy) {
						continue
					}
					seen[cursor] = struct{}{}
					slots = append(slots, Slot{Start: start, End: end, StaffID: staffID})
				}
			}
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
	return slots
}

func (in Inputs) blocked(cand Interval, staffID string, busy []Interval) bool {
	if !in.AllowOverlaps {
		for _, b := range busy {
			if cand.Overlaps(b.Pad(in.BufferBefore, in.BufferAfter)) {
				return true
			}
		}
	}
	// External busy intervals are hard blocks regardless of staff and
	// regardless of buffers.
	for _, b := range in.ExternalBusy {
		if cand.Overlaps(b) {
			return true
		}
	}
	for _, h := range in.Holds {
		if h.StaffID != nil && *h.StaffID != staffID {
			continue
		}
		if cand.Overlaps(h.Interval) {
			return true
		}
	}
	return false
}

func rowsFor(rows []ScheduleRow, wd time.Weekday) []ScheduleRow {
	var out []ScheduleRow
	for _, r := range rows {
		if r.Weekday == wd && r.EndMinute > r.StartMinute {
			out = append(out, r)
		}
	}
	return out
}

func alignUp(minute, step int) int {
	if rem := minute % step; rem != 0 {
		return minute + step - rem
	}
	return minute
}
