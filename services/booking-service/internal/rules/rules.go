package rules

import (
	"encoding/json"
	"math"
	"time"
)

// Rules is the per-organization scheduling policy. It is resolved once
// per request from the org settings document and never mutated; changes
// to the stored document take effect on the next query.
type Rules struct {
	SlotIntervalMinutes int
	LeadTimeMinutes     int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	AllowOverlaps       bool
}

const (
	DefaultSlotIntervalMinutes = 30
	MinSlotIntervalMinutes     = 5
	MaxSlotIntervalMinutes     = 240

	MaxLeadTimeMinutes = 1440
	MaxBufferMinutes   = 240
)

func Defaults() Rules {
	return Rules{SlotIntervalMinutes: DefaultSlotIntervalMinutes}
}

func (r Rules) SlotInterval() time.Duration {
	return time.Duration(r.SlotIntervalMinutes) * time.Minute
}

func (r Rules) LeadTime() time.Duration {
	return time.Duration(r.LeadTimeMinutes) * time.Minute
}

func (r Rules) BufferBefore() time.Duration {
	return time.Duration(r.BufferBeforeMinutes) * time.Minute
}

func (r Rules) BufferAfter() time.Duration {
	return time.Duration(r.BufferAfterMinutes) * time.Minute
}

// Settings is the resolved org settings document.
type Settings struct {
	Timezone           string
	ExternalCalendarID string
	Rules              Rules
}

// Org settings are stored as a loosely-typed JSON document; numbers may
// arrive as floats, out of range, or missing entirely.
type document struct {
	Timezone           string   `json:"timezone"`
	ExternalCalendarID string   `json:"external_calendar_id"`
	BookingRules       rawRules `json:"booking_rules"`
}

type rawRules struct {
	SlotIntervalMinutes *float64 `json:"slot_interval_minutes"`
	LeadTimeMinutes     *float64 `json:"lead_time_minutes"`
	BufferBeforeMinutes *float64 `json:"buffer_before_minutes"`
	BufferAfterMinutes  *float64 `json:"buffer_after_minutes"`
	AllowOverlaps       *bool    `json:"allow_overlaps"`
}

// FromDocument resolves booking rules from a settings document. There is
// no error path: malformed JSON yields the defaults and out-of-range or
// non-finite values are clamped to their bounds, never rejected.
func FromDocument(doc []byte) Rules {
	return SettingsFromDocument(doc).Rules
}

// SettingsFromDocument resolves the full org settings, applying rule
// defaults and a UTC timezone fallback.
func SettingsFromDocument(doc []byte) Settings {
	var d document
	if len(doc) > 0 {
		// Parse errors fall through to defaults on purpose.
		_ = json.Unmarshal(doc, &d)
	}

	r := Rules{
		SlotIntervalMinutes: clampMinutes(d.BookingRules.SlotIntervalMinutes, DefaultSlotIntervalMinutes, MinSlotIntervalMinutes, MaxSlotIntervalMinutes),
		LeadTimeMinutes:     clampMinutes(d.BookingRules.LeadTimeMinutes, 0, 0, MaxLeadTimeMinutes),
		BufferBeforeMinutes: clampMinutes(d.BookingRules.BufferBeforeMinutes, 0, 0, MaxBufferMinutes),
		BufferAfterMinutes:  clampMinutes(d.BookingRules.BufferAfterMinutes, 0, 0, MaxBufferMinutes),
	}
	if d.BookingRules.AllowOverlaps != nil {
		r.AllowOverlaps = *d.BookingRules.AllowOverlaps
	}

	tz := d.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return Settings{
		Timezone:           tz,
		ExternalCalendarID: d.ExternalCalendarID,
		Rules:              r,
	}
}

// Location resolves the org timezone, falling back to UTC when the
// stored name is unknown.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func clampMinutes(v *float64, def, min, max int) int {
	if v == nil || math.IsNaN(*v) {
		return def
	}
	if math.IsInf(*v, 1) {
		return max
	}
	if math.IsInf(*v, -1) {
		return min
	}
	n := int(math.Round(*v))
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
