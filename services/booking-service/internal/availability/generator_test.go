package availability

import (
	"testing"
	"time"
)

const staffAnna = "staff-anna"

// Monday 2026-02-02.
var monday = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

func baseInputs() Inputs {
	return Inputs{
		From:         monday,
		To:           monday,
		Loc:          time.UTC,
		Now:          monday.Add(-24 * time.Hour),
		Duration:     60 * time.Minute,
		SlotInterval: 30 * time.Minute,
		Hours: map[time.Weekday]DayWindow{
			time.Monday: {OpenMinute: 9 * 60, CloseMinute: 17 * 60},
		},
		StaffIDs: []string{staffAnna},
		Schedules: map[string][]ScheduleRow{
			staffAnna: {{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60}},
		},
		Holidays:     map[string]struct{}{},
		Appointments: map[string][]Interval{},
	}
}

func at(hour, min int) time.Time {
	return monday.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func TestGenerate_FullOpenDay(t *testing.T) {
	slots := Generate(baseInputs())

	// 09:00 through 16:00 inclusive at 30min stride; 16:30 would run past close.
	if len(slots) != 15 {
		t.Fatalf("expected 15 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(at(9, 0)) {
		t.Fatalf("first slot should be 09:00, got %s", slots[0].Start)
	}
	if !slots[14].Start.Equal(at(16, 0)) {
		t.Fatalf("last slot should be 16:00, got %s", slots[14].Start)
	}
	for _, s := range slots {
		if !s.End.Equal(s.Start.Add(60 * time.Minute)) {
			t.Fatalf("slot end mismatch: %+v", s)
		}
		if s.StaffID != staffAnna {
			t.Fatalf("unexpected staff id %q", s.StaffID)
		}
	}
}

func TestGenerate_AlignsCursorUpToInterval(t *testing.T) {
	in := baseInputs()
	in.Hours[time.Monday] = DayWindow{OpenMinute: 9*60 + 5, CloseMinute: 17 * 60}
	in.Schedules[staffAnna] = []ScheduleRow{{Weekday: time.Monday, StartMinute: 9*60 + 5, EndMinute: 17 * 60}}

	slots := Generate(in)
	if len(slots) == 0 {
		t.Fatal("expected slots")
	}
	if !slots[0].Start.Equal(at(9, 30)) {
		t.Fatalf("first slot should align to 09:30, got %s", slots[0].Start)
	}
}

func TestGenerate_HalfOpenBoundaries(t *testing.T) {
	in := baseInputs()
	// Existing appointment 10:00-11:00. A slot ending exactly at 10:00 is
	// fine; a slot starting exactly at 10:00 is not.
	in.Appointments[staffAnna] = []Interval{{Start: at(10, 0), End: at(11, 0)}}

	got := startSet(Generate(in))
	if !got[at(9, 0)] {
		t.Fatal("slot [09:00,10:00) should not be blocked by appointment starting at 10:00")
	}
	if got[at(10, 0)] {
		t.Fatal("slot starting exactly at appointment start should be blocked")
	}
	if got[at(10, 30)] {
		t.Fatal("slot overlapping appointment tail should be blocked")
	}
	if !got[at(11, 0)] {
		t.Fatal("slot starting exactly at appointment end should be free")
	}
}

func TestGenerate_BufferWidening(t *testing.T) {
	in := baseInputs()
	in.Duration = 30 * time.Minute
	in.SlotInterval = 5 * time.Minute
	in.BufferAfter = 15 * time.Minute
	in.Appointments[staffAnna] = []Interval{{Start: at(9, 0), End: at(10, 0)}}

	got := startSet(Generate(in))
	if got[at(10, 10)] {
		t.Fatal("10:10 falls inside the 15min post-appointment buffer")
	}
	if !got[at(10, 15)] {
		t.Fatal("10:15 is exactly past the buffer and should be free")
	}
}

func TestGenerate_BuffersDoNotApplyToExternalBusy(t *testing.T) {
	in := baseInputs()
	in.BufferBefore = 30 * time.Minute
	in.BufferAfter = 30 * time.Minute
	in.ExternalBusy = []Interval{{Start: at(12, 0), End: at(13, 0)}}

	got := startSet(Generate(in))
	if !got[at(11, 0)] {
		t.Fatal("external busy must not be padded; [11:00,12:00) should be free")
	}
	if got[at(12, 30)] {
		t.Fatal("slot overlapping external busy should be blocked")
	}
	if !got[at(13, 0)] {
		t.Fatal("slot starting at external busy end should be free")
	}
}

func TestGenerate_LeadTimeAgainstSlotStart(t *testing.T) {
	in := baseInputs()
	in.LeadTime = 30 * time.Minute

	in.Now = at(9, 55) // 10:00 is only 5min out
	got := startSet(Generate(in))
	if got[at(10, 0)] {
		t.Fatal("slot inside the lead-time horizon should be excluded")
	}
	if !got[at(10, 30)] {
		t.Fatal("slot beyond the lead-time horizon should be offered")
	}

	// The same slot is offered while now is still far enough out.
	in.Now = at(9, 25)
	got = startSet(Generate(in))
	if !got[at(10, 0)] {
		t.Fatal("slot should be offered once now is 30min or more before start")
	}
}

func TestGenerate_HolidayShortCircuit(t *testing.T) {
	in := baseInputs()
	in.Holidays[monday.Format("2006-01-02")] = struct{}{}
	if slots := Generate(in); len(slots) != 0 {
		t.Fatalf("holiday must yield zero slots, got %d", len(slots))
	}
}

func TestGenerate_StaffWithoutScheduleRows(t *testing.T) {
	in := baseInputs()
	in.StaffIDs = []string{staffAnna, "staff-bo"}
	// staff-bo has no rows at all: zero slots, not an error.
	slots := Generate(in)
	for _, s := range slots {
		if s.StaffID == "staff-bo" {
			t.Fatal("staff without schedule rows must produce no slots")
		}
	}
	if len(slots) != 15 {
		t.Fatalf("expected 15 slots for scheduled staff, got %d", len(slots))
	}
}

func TestGenerate_DurationLongerThanWindow(t *testing.T) {
	in := baseInputs()
	in.Duration = 9 * time.Hour
	if slots := Generate(in); len(slots) != 0 {
		t.Fatalf("service longer than any open window must yield zero slots, got %d", len(slots))
	}
}

func TestGenerate_ScheduleIntersectsOrgHours(t *testing.T) {
	in := baseInputs()
	// Staff works 07:00-12:00 but the org opens at 09:00.
	in.Schedules[staffAnna] = []ScheduleRow{{Weekday: time.Monday, StartMinute: 7 * 60, EndMinute: 12 * 60}}

	slots := Generate(in)
	if len(slots) == 0 {
		t.Fatal("expected slots")
	}
	if !slots[0].Start.Equal(at(9, 0)) {
		t.Fatalf("first slot should honor org opening, got %s", slots[0].Start)
	}
	last := slots[len(slots)-1]
	if !last.Start.Equal(at(11, 0)) {
		t.Fatalf("last slot should honor staff schedule end, got %s", last.Start)
	}
}

func TestGenerate_OverlappingScheduleRowsUnion(t *testing.T) {
	in := baseInputs()
	in.Schedules[staffAnna] = []ScheduleRow{
		{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 13 * 60},
		{Weekday: time.Monday, StartMinute: 11 * 60, EndMinute: 17 * 60},
	}

	slots := Generate(in)
	counts := map[time.Time]int{}
	for _, s := range slots {
		counts[s.Start]++
	}
	for start, n := range counts {
		if n > 1 {
			t.Fatalf("slot %s emitted %d times; overlapping rows must union", start, n)
		}
	}
	if len(slots) != 15 {
		t.Fatalf("expected the unioned rows to cover the full day (15 slots), got %d", len(slots))
	}
}

func TestGenerate_HoldScoping(t *testing.T) {
	bo := "staff-bo"
	in := baseInputs()
	in.StaffIDs = []string{staffAnna, bo}
	in.Schedules[bo] = []ScheduleRow{{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60}}
	anna := staffAnna
	in.Holds = []Hold{
		{Interval: Interval{Start: at(9, 0), End: at(10, 0)}, StaffID: &anna},
		{Interval: Interval{Start: at(14, 0), End: at(15, 0)}}, // any staff
	}

	byStaff := map[string]map[time.Time]bool{}
	for _, s := range Generate(in) {
		if byStaff[s.StaffID] == nil {
			byStaff[s.StaffID] = map[time.Time]bool{}
		}
		byStaff[s.StaffID][s.Start] = true
	}

	if byStaff[staffAnna][at(9, 0)] {
		t.Fatal("staff-scoped hold should block that staff")
	}
	if !byStaff[bo][at(9, 0)] {
		t.Fatal("staff-scoped hold must not block other staff")
	}
	if byStaff[staffAnna][at(14, 0)] || byStaff[bo][at(14, 0)] {
		t.Fatal("unscoped hold should block every staff member")
	}
}

func TestGenerate_AllowOverlapsIgnoresAppointments(t *testing.T) {
	in := baseInputs()
	in.AllowOverlaps = true
	in.Appointments[staffAnna] = []Interval{{Start: at(9, 0), End: at(17, 0)}}

	if slots := Generate(in); len(slots) != 15 {
		t.Fatalf("allow_overlaps should ignore confirmed appointments, got %d slots", len(slots))
	}
}

func TestGenerate_FixedStrideAllowsOverlappingWindows(t *testing.T) {
	// 60min duration at a 30min stride intentionally yields overlapping
	// candidate windows.
	slots := Generate(baseInputs())
	if len(slots) < 2 {
		t.Fatal("expected multiple slots")
	}
	if gap := slots[1].Start.Sub(slots[0].Start); gap != 30*time.Minute {
		t.Fatalf("stride should equal the slot interval, got %s", gap)
	}
}

func TestGenerate_SortedByStartStaffOrderStable(t *testing.T) {
	bo := "staff-bo"
	in := baseInputs()
	in.StaffIDs = []string{staffAnna, bo}
	in.Schedules[bo] = []ScheduleRow{{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60}}

	slots := Generate(in)
	for i := 1; i < len(slots); i++ {
		if slots[i].Start.Before(slots[i-1].Start) {
			t.Fatal("slots must be sorted by start ascending")
		}
		if slots[i].Start.Equal(slots[i-1].Start) && !(slots[i-1].StaffID == staffAnna && slots[i].StaffID == bo) {
			t.Fatal("ties must preserve staff iteration order")
		}
	}
}

func TestGenerate_MultiDayAndClosedWeekday(t *testing.T) {
	in := baseInputs()
	in.To = monday.AddDate(0, 0, 2) // Mon-Wed, but only Monday has hours
	slots := Generate(in)
	if len(slots) != 15 {
		t.Fatalf("days without an opening window must contribute nothing, got %d", len(slots))
	}
}

func TestMergeIntervals(t *testing.T) {
	merged := MergeIntervals([]Interval{
		{Start: at(13, 0), End: at(14, 0)},
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(9, 30), End: at(11, 0)},
		{Start: at(11, 0), End: at(11, 0)}, // empty, dropped
	})
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged intervals, got %d", len(merged))
	}
	if !merged[0].Start.Equal(at(9, 0)) || !merged[0].End.Equal(at(11, 0)) {
		t.Fatalf("unexpected first merged interval %+v", merged[0])
	}
}

func startSet(slots []Slot) map[time.Time]bool {
	out := make(map[time.Time]bool, len(slots))
	for _, s := range slots {
		out[s.Start] = true
	}
	return out
}
