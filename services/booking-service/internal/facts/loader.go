package facts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/arifhasnat/bookwell/services/booking-service/internal/availability"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/holds"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/model"
)

// Source supplies the scheduling facts for one org. Implemented by the
// Postgres repository; tests swap in fakes.
type Source interface {
	OpeningHours(ctx context.Context, orgID string) (map[time.Weekday]availability.DayWindow, error)
	StaffSchedules(ctx context.Context, orgID, staffID string) (map[string][]availability.ScheduleRow, []string, error)
	AppointmentsOverlapping(ctx context.Context, orgID, staffID string, from, to time.Time) ([]model.Appointment, error)
	Holidays(ctx context.Context, orgID, fromKey, toKey string) (map[string]struct{}, error)
	ServiceDuration(ctx context.Context, orgID, serviceID string) (int, error)
}

type HoldSource interface {
	Active(ctx context.Context, orgID string, now time.Time) ([]holds.Hold, error)
}

// ErrServiceNotFound means a service id was given but no such service
// exists for the org. Callers treat it as a client error, not a silent
// empty result.
var ErrServiceNotFound = errors.New("service not found")

type Query struct {
	OrgID     string
	ServiceID string // empty means no service filter; duration falls back
	StaffID   string // empty means all staff
	From      time.Time
	To        time.Time
	Now       time.Time

	// FallbackDurationMinutes is used when no service is given or the
	// service row carries no duration of its own.
	FallbackDurationMinutes int
}

// Facts is everything the slot generator needs, loaded in one pass.
type Facts struct {
	Hours           map[time.Weekday]availability.DayWindow
	Schedules       map[string][]availability.ScheduleRow
	StaffOrder      []string
	Appointments    map[string][]availability.Interval
	Holidays        map[string]struct{}
	Holds           []holds.Hold
	DurationMinutes int
}

type Loader struct {
	source Source
	holds  HoldSource
}

func NewLoader(source Source, holdSource HoldSource) *Loader {
	return &Loader{source: source, holds: holdSource}
}

// Load fetches all scheduling facts concurrently. Every fact read is
// required; any failure fails the whole load.
func (l *Loader) Load(ctx context.Context, q Query) (Facts, error) {
	var out Facts

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hours, err := l.source.OpeningHours(ctx, q.OrgID)
		if err != nil {
			return err
		}
		out.Hours = hours
		return nil
	})

	g.Go(func() error {
		schedules, order, err := l.source.StaffSchedules(ctx, q.OrgID, q.StaffID)
		if err != nil {
			return err
		}
		out.Schedules = schedules
		out.StaffOrder = order
		return nil
	})

	g.Go(func() error {
		appts, err := l.source.AppointmentsOverlapping(ctx, q.OrgID, q.StaffID, q.From, q.To)
		if err != nil {
			return err
		}
		out.Appointments = groupByStaff(appts)
		return nil
	})

	g.Go(func() error {
		holidays, err := l.source.Holidays(ctx, q.OrgID, q.From.Format("2006-01-02"), q.To.Format("2006-01-02"))
		if err != nil {
			return err
		}
		out.Holidays = holidays
		return nil
	})

	g.Go(func() error {
		if q.ServiceID == "" {
			out.DurationMinutes = q.FallbackDurationMinutes
			return nil
		}
		mins, err := l.source.ServiceDuration(ctx, q.OrgID, q.ServiceID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrServiceNotFound
		}
		if err != nil {
			return err
		}
		if mins <= 0 {
			mins = q.FallbackDurationMinutes
		}
		out.DurationMinutes = mins
		return nil
	})

	g.Go(func() error {
		active, err := l.holds.Active(ctx, q.OrgID, q.Now)
		if err != nil {
			return err
		}
		out.Holds = active
		return nil
	})

	if err := g.Wait(); err != nil {
		return Facts{}, err
	}
	return out, nil
}

// groupByStaff maps blocking appointments to intervals per staff
// member. Conflict exclusivity is per staff member, so appointments
// without an assigned staff member block no one's column and are
// dropped.
func groupByStaff(appts []model.Appointment) map[string][]availability.Interval {
	out := map[string][]availability.Interval{}
	for _, a := range appts {
		if !a.Blocking() || a.StaffID == nil {
			continue
		}
		out[*a.StaffID] = append(out[*a.StaffID], availability.Interval{Start: a.StartTime, End: a.EndTime})
	}
	return out
}
