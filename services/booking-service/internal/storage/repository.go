package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arifhasnat/bookwell/libs/db"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/availability"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/model"
)

// Repository is the Postgres access layer for scheduling facts and
// appointments. The appointments table is the single source of truth
// for booked time; everything else is read-mostly reference data.
type Repository struct {
	pool   *db.Pool
	outbox OutboxInserter
}

func NewRepository(pool *db.Pool, outbox OutboxInserter) *Repository {
	return &Repository{pool: pool, outbox: outbox}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Settings returns the org's settings document, or nil when the org has
// never stored one (callers apply defaults).
func (r *Repository) Settings(ctx context.Context, orgID string) ([]byte, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx, `
		SELECT doc
		FROM org_settings
		WHERE org_id = $1
	`, orgID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// OpeningHours returns the org's weekly opening windows. A row with
// open == close == 0 means closed that weekday and is omitted.
func (r *Repository) OpeningHours(ctx context.Context, orgID string) (map[time.Weekday]availability.DayWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, open_minute, close_minute
		FROM opening_hours
		WHERE org_id = $1
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[time.Weekday]availability.DayWindow{}
	for rows.Next() {
		var weekday, openMin, closeMin int
		if err := rows.Scan(&weekday, &openMin, &closeMin); err != nil {
			return nil, err
		}
		if openMin == 0 && closeMin == 0 {
			continue
		}
		out[time.Weekday(weekday)] = availability.DayWindow{OpenMinute: openMin, CloseMinute: closeMin}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// StaffSchedules returns weekly schedule rows grouped by staff member
// plus a deterministic staff iteration order. Pass staffID to restrict
// to one staff member.
func (r *Repository) StaffSchedules(ctx context.Context, orgID, staffID string) (map[string][]availability.ScheduleRow, []string, error) {
	query := `
		SELECT staff_id::text, weekday, start_minute, end_minute
		FROM staff_schedules
		WHERE org_id = $1
		ORDER BY staff_id, weekday, start_minute
	`
	args := []any{orgID}
	if staffID != "" {
		query = `
			SELECT staff_id::text, weekday, start_minute, end_minute
			FROM staff_schedules
			WHERE org_id = $1 AND staff_id = $2
			ORDER BY weekday, start_minute
		`
		args = append(args, staffID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	schedules := map[string][]availability.ScheduleRow{}
	var order []string
	for rows.Next() {
		var id string
		var row availability.ScheduleRow
		var weekday int
		if err := rows.Scan(&id, &weekday, &row.StartMinute, &row.EndMinute); err != nil {
			return nil, nil, err
		}
		row.Weekday = time.Weekday(weekday)
		if _, seen := schedules[id]; !seen {
			order = append(order, id)
		}
		schedules[id] = append(schedules[id], row)
	}
	if rows.Err() != nil {
		return nil, nil, rows.Err()
	}
	return schedules, order, nil
}

// AppointmentsOverlapping lists non-cancelled appointments intersecting
// [from, to). Cancelled appointments never block.
func (r *Repository) AppointmentsOverlapping(ctx context.Context, orgID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	query := `
		SELECT id::text, org_id::text, service_id::text, staff_id::text, start_time, end_time, status
		FROM appointments
		WHERE org_id = $1
			AND status <> 'cancelled'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`
	args := []any{orgID, from, to}
	if staffID != "" {
		query = `
			SELECT id::text, org_id::text, service_id::text, staff_id::text, start_time, end_time, status
			FROM appointments
			WHERE org_id = $1
				AND staff_id = $4
				AND status <> 'cancelled'
				AND start_time < $3
				AND end_time > $2
			ORDER BY start_time ASC
		`
		args = append(args, staffID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		var staff *string
		if err := rows.Scan(&appt.ID, &appt.OrgID, &appt.ServiceID, &staff, &appt.StartTime, &appt.EndTime, &appt.Status); err != nil {
			return nil, err
		}
		appt.StaffID = staff
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// Holidays returns the org-wide holiday dates between fromKey and toKey
// (inclusive, "2006-01-02" in the org's timezone).
func (r *Repository) Holidays(ctx context.Context, orgID, fromKey, toKey string) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(holiday_date, 'YYYY-MM-DD')
		FROM holidays
		WHERE org_id = $1
			AND holiday_date >= $2::date
			AND holiday_date <= $3::date
	`, orgID, fromKey, toKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]struct{}{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out[key] = struct{}{}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) ServiceDuration(ctx context.Context, orgID, serviceID string) (int, error) {
	var mins int
	err := r.pool.QueryRow(ctx, `
		SELECT duration_minutes
		FROM services
		WHERE org_id = $1 AND id = $2
	`, orgID, serviceID).Scan(&mins)
	return mins, err
}

func (r *Repository) ListAppointments(ctx context.Context, orgID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, org_id::text, service_id::text, staff_id::text, customer_name, customer_email, customer_phone,
			start_time, end_time, status, cancelled_at, COALESCE(cancellation_reason, ''), created_at
		FROM appointments
		WHERE org_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var staff *string
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.OrgID,
		&appt.ServiceID,
		&staff,
		&appt.CustomerName,
		&appt.CustomerEmail,
		&appt.CustomerPhone,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Status,
		&cancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.StaffID = staff
	appt.CancelledAt = cancelledAt
	return appt, nil
}

// IsConflict reports a double-booking rejected by the database: either
// the overlap exclusion constraint or the idempotency unique index.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23P01" || pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
