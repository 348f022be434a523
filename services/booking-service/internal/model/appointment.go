package model

import "time"

// Appointment statuses. Appointments are never deleted; cancellation and
// no-show are status transitions. Only non-cancelled appointments block
// availability.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

type Appointment struct {
	ID             string
	OrgID          string
	ServiceID      string
	StaffID        *string // nil means "any staff"
	CustomerID     string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	StartTime      time.Time
	EndTime        time.Time
	Status         string
	IdempotencyKey string
	CancelledAt    *time.Time
	CancelReason   string
	CreatedAt      time.Time
}

// Blocking reports whether the appointment should count as busy time
// when computing availability.
func (a Appointment) Blocking() bool {
	return a.Status != StatusCancelled
}
