package holds

import (
	"context"
	"fmt"
	"testing"
	"time"
)

var holdBase = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func activeHold(start, end time.Time, staffID *string) Hold {
	return Hold{
		ID:        "h-1",
		Start:     start,
		End:       end,
		StaffID:   staffID,
		CreatedAt: holdBase.Add(-time.Minute),
		ExpiresAt: holdBase.Add(5 * time.Minute),
	}
}

func TestHold_ExpiryBoundary(t *testing.T) {
	h := Hold{ExpiresAt: holdBase}
	if h.ActiveAt(holdBase) {
		t.Fatal("a hold whose expiresAt equals now is inert")
	}
	if !h.ActiveAt(holdBase.Add(-time.Second)) {
		t.Fatal("a hold before expiresAt is active")
	}
}

func TestHold_BlocksHalfOpen(t *testing.T) {
	h := activeHold(holdBase, holdBase.Add(30*time.Minute), nil)

	if h.Blocks(holdBase.Add(-30*time.Minute), holdBase, nil) {
		t.Fatal("interval ending at hold start must not conflict")
	}
	if !h.Blocks(holdBase, holdBase.Add(15*time.Minute), nil) {
		t.Fatal("interval starting at hold start must conflict")
	}
	if h.Blocks(holdBase.Add(30*time.Minute), holdBase.Add(time.Hour), nil) {
		t.Fatal("interval starting at hold end must not conflict")
	}
}

func TestHold_StaffScope(t *testing.T) {
	anna, bo := "anna", "bo"
	start, end := holdBase, holdBase.Add(30*time.Minute)

	scoped := activeHold(start, end, &anna)
	if !scoped.Blocks(start, end, &anna) {
		t.Fatal("scoped hold must block the same staff")
	}
	if scoped.Blocks(start, end, &bo) {
		t.Fatal("scoped hold must not block other staff")
	}
	// nil on either side means any staff.
	if !scoped.Blocks(start, end, nil) {
		t.Fatal("scoped hold must block an any-staff query")
	}
	unscoped := activeHold(start, end, nil)
	if !unscoped.Blocks(start, end, &bo) {
		t.Fatal("unscoped hold must block every staff")
	}
}

func TestIsHeld_SkipsExpired(t *testing.T) {
	start, end := holdBase, holdBase.Add(30*time.Minute)
	expired := Hold{Start: start, End: end, ExpiresAt: holdBase.Add(-time.Minute)}
	if IsHeld([]Hold{expired}, start, end, nil, holdBase) {
		t.Fatal("expired holds must not block")
	}
}

func TestMemoryStore_CapEvictsOldest(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < MaxPerOrg+10; i++ {
		h := Hold{
			ID:        fmt.Sprintf("h-%d", i),
			Start:     holdBase,
			End:       holdBase.Add(30 * time.Minute),
			CreatedAt: holdBase.Add(time.Duration(i) * time.Second),
			ExpiresAt: holdBase.Add(time.Hour),
		}
		if err := s.Place(ctx, "org-1", h); err != nil {
			t.Fatalf("place: %v", err)
		}
	}

	active, err := s.Active(ctx, "org-1", holdBase)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != MaxPerOrg {
		t.Fatalf("expected %d holds after eviction, got %d", MaxPerOrg, len(active))
	}
	if active[0].ID != "h-10" {
		t.Fatalf("the oldest holds should be evicted first, got %s", active[0].ID)
	}
}

func TestMemoryStore_ActiveFiltersExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	live := activeHold(holdBase, holdBase.Add(30*time.Minute), nil)
	dead := live
	dead.ID = "h-dead"
	dead.ExpiresAt = holdBase.Add(-time.Minute)

	_ = s.Place(ctx, "org-1", live)
	_ = s.Place(ctx, "org-1", dead)

	active, err := s.Active(ctx, "org-1", holdBase)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || active[0].ID != "h-1" {
		t.Fatalf("expected only the live hold, got %+v", active)
	}
}

func TestMemoryStore_OrgIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Place(ctx, "org-1", activeHold(holdBase, holdBase.Add(30*time.Minute), nil))

	other, err := s.Active(ctx, "org-2", holdBase)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(other) != 0 {
		t.Fatal("holds must be scoped per organization")
	}
}
