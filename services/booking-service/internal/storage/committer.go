package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arifhasnat/bookwell/services/booking-service/internal/model"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/outbox"
)

// OutboxInserter records a domain event in the same transaction as the
// domain change.
type OutboxInserter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

var (
	// ErrSlotTaken means the requested time conflicts with an existing
	// scheduled appointment. It maps to a 409, not a generic failure,
	// so callers can tell the customer to pick another slot.
	ErrSlotTaken = errors.New("slot no longer available")

	ErrServiceNotFound = errors.New("service not found")
	ErrNotCancellable  = errors.New("appointment is not cancellable")
)

type BookingRequest struct {
	OrgID          string
	ServiceID      string
	StaffID        *string
	Start          time.Time
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	IdempotencyKey string

	BufferBeforeMinutes int
	BufferAfterMinutes  int
	AllowOverlaps       bool
}

type BookingResult struct {
	Appointment   model.Appointment
	AlreadyBooked bool
}

type CancelResult struct {
	Appointment      model.Appointment
	AlreadyCancelled bool
}

// CommitBooking books an appointment atomically: idempotency replay,
// conflict check against buffered scheduled appointments, customer
// upsert, and the insert all happen in one transaction together with
// the outbox event. The advisory lock serializes concurrent bookings
// for the same staff member; the exclusion constraint on appointments
// is the backstop if anything slips through.
func (r *Repository) CommitBooking(ctx context.Context, req BookingRequest) (BookingResult, error) {
	durationMinutes, err := r.ServiceDuration(ctx, req.OrgID, req.ServiceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return BookingResult{}, ErrServiceNotFound
	}
	if err != nil {
		return BookingResult{}, fmt.Errorf("load service: %w", err)
	}
	end := req.Start.Add(time.Duration(durationMinutes) * time.Minute)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return BookingResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if req.IdempotencyKey != "" {
		existing, err := findByIdempotencyKey(ctx, tx, req.OrgID, req.IdempotencyKey)
		if err != nil {
			return BookingResult{}, err
		}
		if existing != nil {
			return BookingResult{Appointment: *existing, AlreadyBooked: true}, nil
		}
	}

	if !req.AllowOverlaps && req.StaffID != nil {
		lockKey := req.OrgID + "/" + *req.StaffID
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
			return BookingResult{}, fmt.Errorf("acquire booking lock: %w", err)
		}

		bufStart, bufEnd := bufferedConflictWindow(req.Start, end, req.BufferBeforeMinutes, req.BufferAfterMinutes)
		var conflicts int
		err := tx.QueryRow(ctx, `
			SELECT count(*)
			FROM appointments
			WHERE org_id = $1
				AND staff_id = $2
				AND status = 'scheduled'
				AND start_time - make_interval(mins => $5) < $4::timestamptz
				AND end_time + make_interval(mins => $6) > $3::timestamptz
		`, req.OrgID, *req.StaffID, bufStart, bufEnd,
			req.BufferBeforeMinutes, req.BufferAfterMinutes).Scan(&conflicts)
		if err != nil {
			return BookingResult{}, fmt.Errorf("check conflicts: %w", err)
		}
		if conflicts > 0 {
			return BookingResult{}, ErrSlotTaken
		}
	}

	var customerID string
	err = tx.QueryRow(ctx, `
		INSERT INTO customers (org_id, name, email, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, phone) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email
		RETURNING id::text
	`, req.OrgID, req.CustomerName, req.CustomerEmail, req.CustomerPhone).Scan(&customerID)
	if err != nil {
		return BookingResult{}, fmt.Errorf("upsert customer: %w", err)
	}

	appt := model.Appointment{
		OrgID:          req.OrgID,
		ServiceID:      req.ServiceID,
		StaffID:        req.StaffID,
		CustomerID:     customerID,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		StartTime:      req.Start,
		EndTime:        end,
		Status:         model.StatusScheduled,
		IdempotencyKey: req.IdempotencyKey,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (org_id, service_id, staff_id, customer_id, customer_name, customer_email, customer_phone, start_time, end_time, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id::text, created_at
	`, appt.OrgID, appt.ServiceID, appt.StaffID, customerID, appt.CustomerName, appt.CustomerEmail, appt.CustomerPhone,
		appt.StartTime, appt.EndTime, appt.Status, appt.IdempotencyKey).Scan(&appt.ID, &appt.CreatedAt)
	if IsConflict(err) {
		return BookingResult{}, ErrSlotTaken
	}
	if err != nil {
		return BookingResult{}, fmt.Errorf("insert appointment: %w", err)
	}

	if err := r.insertEvent(ctx, tx, outbox.EventAppointmentScheduled, appt); err != nil {
		return BookingResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return BookingResult{}, err
	}
	return BookingResult{Appointment: appt}, nil
}

// CancelBooking transitions a scheduled appointment to cancelled.
// Cancelling an already-cancelled appointment is a no-op replay.
func (r *Repository) CancelBooking(ctx context.Context, orgID, appointmentID, reason string) (CancelResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return CancelResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT id::text, org_id::text, service_id::text, staff_id::text, customer_name, customer_email, customer_phone,
			start_time, end_time, status, cancelled_at, COALESCE(cancellation_reason, ''), created_at
		FROM appointments
		WHERE org_id = $1 AND id = $2
		FOR UPDATE
	`, orgID, appointmentID))
	if err != nil {
		return CancelResult{}, err
	}

	if appt.Status == model.StatusCancelled {
		return CancelResult{Appointment: appt, AlreadyCancelled: true}, nil
	}
	if appt.Status != model.StatusScheduled {
		return CancelResult{}, ErrNotCancellable
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3, cancelled_at = $4, cancellation_reason = $5
		WHERE org_id = $1 AND id = $2
	`, orgID, appointmentID, model.StatusCancelled, now, reason)
	if err != nil {
		return CancelResult{}, fmt.Errorf("cancel appointment: %w", err)
	}
	appt.Status = model.StatusCancelled
	appt.CancelledAt = &now
	appt.CancelReason = reason

	if err := r.insertEvent(ctx, tx, outbox.EventAppointmentCancelled, appt); err != nil {
		return CancelResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return CancelResult{}, err
	}
	return CancelResult{Appointment: appt}, nil
}

// bufferedConflictWindow widens the candidate to its buffered interval.
// The conflict query compares it against each existing appointment's
// buffered interval, so no-double-booking holds over pairs of buffered
// intervals, not just raw ones. This is deliberately stricter than slot
// generation, which pads only the existing side; a candidate rejected
// here but offered there resolves as ordinary staleness.
func bufferedConflictWindow(start, end time.Time, beforeMinutes, afterMinutes int) (time.Time, time.Time) {
	return start.Add(-time.Duration(beforeMinutes) * time.Minute),
		end.Add(time.Duration(afterMinutes) * time.Minute)
}

func (r *Repository) insertEvent(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment) error {
	payload, err := json.Marshal(appointmentEvent{
		AppointmentID: appt.ID,
		OrgID:         appt.OrgID,
		ServiceID:     appt.ServiceID,
		StaffID:       appt.StaffID,
		CustomerName:  appt.CustomerName,
		CustomerEmail: appt.CustomerEmail,
		CustomerPhone: appt.CustomerPhone,
		StartTime:     appt.StartTime.UTC(),
		EndTime:       appt.EndTime.UTC(),
		Status:        appt.Status,
		CancelReason:  appt.CancelReason,
	})
	if err != nil {
		return err
	}
	err = r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("record outbox event: %w", err)
	}
	return nil
}

type appointmentEvent struct {
	AppointmentID string    `json:"appointment_id"`
	OrgID         string    `json:"org_id"`
	ServiceID     string    `json:"service_id"`
	StaffID       *string   `json:"staff_id,omitempty"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CustomerPhone string    `json:"customer_phone"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	CancelReason  string    `json:"cancel_reason,omitempty"`
}

func findByIdempotencyKey(ctx context.Context, tx pgx.Tx, orgID, key string) (*model.Appointment, error) {
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT id::text, org_id::text, service_id::text, staff_id::text, customer_name, customer_email, customer_phone,
			start_time, end_time, status, cancelled_at, COALESCE(cancellation_reason, ''), created_at
		FROM appointments
		WHERE org_id = $1 AND idempotency_key = $2
	`, orgID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &appt, nil
}
