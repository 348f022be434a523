package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arifhasnat/bookwell/services/booking-service/internal/model"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/rules"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/storage"
)

// BookingService is the transactional booking surface the handler
// depends on. The Postgres repository implements it.
type BookingService interface {
	CommitBooking(ctx context.Context, req storage.BookingRequest) (storage.BookingResult, error)
	CancelBooking(ctx context.Context, orgID, appointmentID, reason string) (storage.CancelResult, error)
	ListAppointments(ctx context.Context, orgID string, limit int) ([]model.Appointment, error)
}

type BookingHandler struct {
	bookings BookingService
	settings SettingsSource
	logger   *slog.Logger
}

func NewBookingHandler(bookings BookingService, settings SettingsSource, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, settings: settings, logger: logger}
}

type bookRequest struct {
	OrgID          string  `json:"org_id"`
	ServiceID      string  `json:"service_id"`
	StaffID        *string `json:"staff_id"`
	StartTime      string  `json:"start_time"`
	CustomerName   string  `json:"customer_name"`
	CustomerEmail  string  `json:"customer_email"`
	CustomerPhone  string  `json:"customer_phone"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type bookResponse struct {
	AppointmentID string  `json:"appointment_id"`
	StaffID       *string `json:"staff_id,omitempty"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	Status        string  `json:"status"`
	AlreadyBooked bool    `json:"already_booked"`
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.OrgID = strings.TrimSpace(req.OrgID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	if req.OrgID == "" || req.ServiceID == "" || req.CustomerName == "" || req.CustomerPhone == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	if req.StaffID != nil && strings.TrimSpace(*req.StaffID) == "" {
		req.StaffID = nil
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	// The header wins over the body field when both are present.
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	}

	ctx := r.Context()
	doc, err := h.settings.Settings(ctx, req.OrgID)
	if err != nil {
		http.Error(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	ruleset := rules.FromDocument(doc)

	result, err := h.bookings.CommitBooking(ctx, storage.BookingRequest{
		OrgID:               req.OrgID,
		ServiceID:           req.ServiceID,
		StaffID:             req.StaffID,
		Start:               start,
		CustomerName:        req.CustomerName,
		CustomerEmail:       strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:       req.CustomerPhone,
		IdempotencyKey:      idempotencyKey,
		BufferBeforeMinutes: ruleset.BufferBeforeMinutes,
		BufferAfterMinutes:  ruleset.BufferAfterMinutes,
		AllowOverlaps:       ruleset.AllowOverlaps,
	})
	switch {
	case errors.Is(err, storage.ErrSlotTaken):
		http.Error(w, "slot no longer available", http.StatusConflict)
		return
	case errors.Is(err, storage.ErrServiceNotFound):
		http.Error(w, "service not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("booking failed", "org_id", req.OrgID, "err", err)
		http.Error(w, "failed to book appointment", http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if result.AlreadyBooked {
		status = http.StatusOK
	}
	appt := result.Appointment
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(bookResponse{
		AppointmentID: appt.ID,
		StaffID:       appt.StaffID,
		StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
		Status:        appt.Status,
		AlreadyBooked: result.AlreadyBooked,
	})
}

type cancelRequest struct {
	OrgID         string `json:"org_id"`
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type cancelResponse struct {
	AppointmentID    string `json:"appointment_id"`
	Status           string `json:"status"`
	CancelledAt      string `json:"cancelled_at,omitempty"`
	AlreadyCancelled bool   `json:"already_cancelled"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.OrgID = strings.TrimSpace(req.OrgID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.OrgID == "" || req.AppointmentID == "" {
		http.Error(w, "org_id and appointment_id are required", http.StatusBadRequest)
		return
	}

	result, err := h.bookings.CancelBooking(r.Context(), req.OrgID, req.AppointmentID, strings.TrimSpace(req.Reason))
	switch {
	case storage.IsNotFound(err):
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	case errors.Is(err, storage.ErrNotCancellable):
		http.Error(w, "appointment is not cancellable", http.StatusConflict)
		return
	case err != nil:
		h.logger.Error("cancel failed", "org_id", req.OrgID, "appointment_id", req.AppointmentID, "err", err)
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}

	resp := cancelResponse{
		AppointmentID:    result.Appointment.ID,
		Status:           result.Appointment.Status,
		AlreadyCancelled: result.AlreadyCancelled,
	}
	if result.Appointment.CancelledAt != nil {
		resp.CancelledAt = result.Appointment.CancelledAt.UTC().Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type appointmentItem struct {
	AppointmentID string  `json:"appointment_id"`
	ServiceID     string  `json:"service_id"`
	StaffID       *string `json:"staff_id,omitempty"`
	CustomerName  string  `json:"customer_name"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	Status        string  `json:"status"`
	CancelledAt   string  `json:"cancelled_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	orgID := strings.TrimSpace(r.URL.Query().Get("org_id"))
	if orgID == "" {
		http.Error(w, "org_id is required", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	appts, err := h.bookings.ListAppointments(r.Context(), orgID, limit)
	if err != nil {
		h.logger.Error("list appointments failed", "org_id", orgID, "err", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		item := appointmentItem{
			AppointmentID: a.ID,
			ServiceID:     a.ServiceID,
			StaffID:       a.StaffID,
			CustomerName:  a.CustomerName,
			StartTime:     a.StartTime.UTC().Format(time.RFC3339),
			EndTime:       a.EndTime.UTC().Format(time.RFC3339),
			Status:        a.Status,
			CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
		}
		if a.CancelledAt != nil {
			item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"appointments": items})
}
