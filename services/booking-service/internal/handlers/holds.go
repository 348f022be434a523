package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arifhasnat/bookwell/services/booking-service/internal/holds"
)

// Checkout hold TTL bounds. A client may request a shorter or longer
// hold within these.
const (
	DefaultHoldTTL = 5 * time.Minute
	MinHoldTTL     = 30 * time.Second
	MaxHoldTTL     = 30 * time.Minute
)

type HoldsHandler struct {
	store  holds.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewHoldsHandler(store holds.Store, logger *slog.Logger) *HoldsHandler {
	return &HoldsHandler{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type placeHoldRequest struct {
	OrgID      string  `json:"org_id"`
	Start      string  `json:"start"`
	End        string  `json:"end"`
	StaffID    *string `json:"staff_id"`
	TTLSeconds int     `json:"ttl_seconds"`
	Source     string  `json:"source"`
	Note       string  `json:"note"`
}

type placeHoldResponse struct {
	HoldID    string `json:"hold_id"`
	ExpiresAt string `json:"expires_at"`
}

func (h *HoldsHandler) Place(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req placeHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.OrgID = strings.TrimSpace(req.OrgID)
	if req.OrgID == "" {
		http.Error(w, "org_id is required", http.StatusBadRequest)
		return
	}
	if req.StaffID != nil && strings.TrimSpace(*req.StaffID) == "" {
		req.StaffID = nil
	}

	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		http.Error(w, "invalid end", http.StatusBadRequest)
		return
	}
	if !end.After(start) {
		http.Error(w, "end must be after start", http.StatusBadRequest)
		return
	}

	ttl := DefaultHoldTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
		if ttl < MinHoldTTL {
			ttl = MinHoldTTL
		}
		if ttl > MaxHoldTTL {
			ttl = MaxHoldTTL
		}
	}

	now := h.now()
	hold := holds.Hold{
		ID:        uuid.NewString(),
		Start:     start,
		End:       end,
		StaffID:   req.StaffID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Source:    strings.TrimSpace(req.Source),
		Note:      strings.TrimSpace(req.Note),
	}
	if err := h.store.Place(r.Context(), req.OrgID, hold); err != nil {
		h.logger.Error("place hold failed", "org_id", req.OrgID, "err", err)
		http.Error(w, "failed to place hold", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(placeHoldResponse{
		HoldID:    hold.ID,
		ExpiresAt: hold.ExpiresAt.Format(time.RFC3339),
	})
}
