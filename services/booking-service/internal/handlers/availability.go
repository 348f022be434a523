package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arifhasnat/bookwell/services/booking-service/internal/availability"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/external"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/facts"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/rules"
)

// MaxRangeDays caps an availability query. The range check runs before
// any fact is loaded.
const MaxRangeDays = 62

const dateLayout = "2006-01-02"

// SettingsSource returns the org settings document, nil when unset.
type SettingsSource interface {
	Settings(ctx context.Context, orgID string) ([]byte, error)
}

type AvailabilityHandler struct {
	settings SettingsSource
	facts    *facts.Loader
	busy     external.BusySource
	logger   *slog.Logger
	now      func() time.Time
}

func NewAvailabilityHandler(settings SettingsSource, loader *facts.Loader, busy external.BusySource, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		settings: settings,
		facts:    loader,
		busy:     busy,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type slotItem struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	StaffID string `json:"staff_id"`
}

type availabilityMeta struct {
	DurationMinutes     int  `json:"duration_minutes"`
	SlotIntervalMinutes int  `json:"slot_interval_minutes"`
	LeadTimeMinutes     int  `json:"lead_time_minutes"`
	BufferBeforeMinutes int  `json:"buffer_before_minutes"`
	BufferAfterMinutes  int  `json:"buffer_after_minutes"`
	AllowOverlaps       bool `json:"allow_overlaps"`
	TotalSlots          int  `json:"total_slots"`
}

type availabilityResponse struct {
	Slots []slotItem       `json:"slots"`
	Meta  availabilityMeta `json:"meta"`
}

func (h *AvailabilityHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	orgID := strings.TrimSpace(q.Get("org_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	staffID := strings.TrimSpace(q.Get("staff_id"))
	if orgID == "" {
		http.Error(w, "org_id is required", http.StatusBadRequest)
		return
	}

	// Validate the range before touching the database; the day count
	// does not depend on the org timezone.
	fromDay, err := time.Parse(dateLayout, q.Get("from"))
	if err != nil {
		http.Error(w, "invalid from date", http.StatusBadRequest)
		return
	}
	toDay, err := time.Parse(dateLayout, q.Get("to"))
	if err != nil {
		http.Error(w, "invalid to date", http.StatusBadRequest)
		return
	}
	if toDay.Before(fromDay) {
		http.Error(w, "to must not be before from", http.StatusBadRequest)
		return
	}
	if rangeDays(fromDay, toDay) > MaxRangeDays {
		http.Error(w, "date range too large", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	doc, err := h.settings.Settings(ctx, orgID)
	if err != nil {
		http.Error(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	settings := rules.SettingsFromDocument(doc)
	loc := settings.Location()

	from := time.Date(fromDay.Year(), fromDay.Month(), fromDay.Day(), 0, 0, 0, 0, loc)
	to := time.Date(toDay.Year(), toDay.Month(), toDay.Day(), 0, 0, 0, 0, loc)

	now := h.now()
	var loaded facts.Facts
	var busyResult external.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		loaded, err = h.facts.Load(gctx, facts.Query{
			OrgID:     orgID,
			ServiceID: serviceID,
			StaffID:   staffID,
			From:      from,
			To:        to.AddDate(0, 0, 1),
			Now:       now,
			// Without a service the slot grid itself is the duration.
			FallbackDurationMinutes: settings.Rules.SlotIntervalMinutes,
		})
		return err
	})
	g.Go(func() error {
		// Best-effort by contract: FreeBusy degrades instead of failing.
		busyResult = h.busy.FreeBusy(gctx, settings.ExternalCalendarID, from, to.AddDate(0, 0, 1))
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, facts.ErrServiceNotFound) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		h.logger.Error("availability facts load failed", "org_id", orgID, "err", err)
		http.Error(w, "failed to load availability", http.StatusInternalServerError)
		return
	}
	if busyResult.Degraded {
		h.logger.Warn("external calendar degraded; computing without it",
			"org_id", orgID, "reason", busyResult.Reason)
	}

	ruleset := settings.Rules
	slots := availability.Generate(availability.Inputs{
		From:          from,
		To:            to,
		Loc:           loc,
		Now:           now,
		Duration:      time.Duration(loaded.DurationMinutes) * time.Minute,
		SlotInterval:  ruleset.SlotInterval(),
		LeadTime:      ruleset.LeadTime(),
		BufferBefore:  ruleset.BufferBefore(),
		BufferAfter:   ruleset.BufferAfter(),
		AllowOverlaps: ruleset.AllowOverlaps,
		Hours:         loaded.Hours,
		StaffIDs:      loaded.StaffOrder,
		Schedules:     loaded.Schedules,
		Holidays:      loaded.Holidays,
		Appointments:  loaded.Appointments,
		ExternalBusy:  busyResult.Busy,
		Holds:         holdInputs(loaded),
	})

	resp := availabilityResponse{
		Slots: make([]slotItem, 0, len(slots)),
		Meta: availabilityMeta{
			DurationMinutes:     loaded.DurationMinutes,
			SlotIntervalMinutes: ruleset.SlotIntervalMinutes,
			LeadTimeMinutes:     ruleset.LeadTimeMinutes,
			BufferBeforeMinutes: ruleset.BufferBeforeMinutes,
			BufferAfterMinutes:  ruleset.BufferAfterMinutes,
			AllowOverlaps:       ruleset.AllowOverlaps,
			TotalSlots:          len(slots),
		},
	}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotItem{
			Start:   s.Start.Format(time.RFC3339),
			End:     s.End.Format(time.RFC3339),
			StaffID: s.StaffID,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func holdInputs(loaded facts.Facts) []availability.Hold {
	out := make([]availability.Hold, 0, len(loaded.Holds))
	for _, h := range loaded.Holds {
		out = append(out, availability.Hold{
			Interval: availability.Interval{Start: h.Start, End: h.End},
			StaffID:  h.StaffID,
		})
	}
	return out
}

// rangeDays counts calendar days in the inclusive [from, to] range.
func rangeDays(from, to time.Time) int {
	days := 0
	for d := from; !d.After(to) && days <= MaxRangeDays; d = d.AddDate(0, 0, 1) {
		days++
	}
	return days
}
