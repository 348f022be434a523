package availability

import "time"

// Interval is a half-open time interval [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect. An
// interval ending exactly when the other begins does not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Pad widens the interval by the given durations on each side. Used to
// apply spacing buffers around confirmed appointments; the buffer is
// never stored on the appointment itself.
func (iv Interval) Pad(before, after time.Duration) Interval {
	return Interval{Start: iv.Start.Add(-before), End: iv.End.Add(after)}
}

// MergeIntervals sorts and coalesces overlapping or touching intervals,
// dropping empty ones. The input slice is not modified.
func MergeIntervals(in []Interval) []Interval {
	var valid []Interval
	for _, iv := range in {
		if iv.End.After(iv.Start) {
			valid = append(valid, iv)
		}
	}
	if len(valid) <= 1 {
		return valid
	}

	sortIntervals(valid)
	out := valid[:1]
	for _, iv := range valid[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

func sortIntervals(ivs []Interval) {
	// Insertion sort; busy lists are small (one org, one date range).
	for i := 1; i < len(ivs); i++ {
		for j := i; j > 0 && ivs[j].Start.Before(ivs[j-1].Start); j-- {
			ivs[j], ivs[j-1] = ivs[j-1], ivs[j]
		}
	}
}
