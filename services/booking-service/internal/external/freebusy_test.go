package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var fbFrom = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
var fbTo = time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)

func TestFreeBusy_MergesProviderBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/calendars/cal-1/freebusy" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("from") == "" || r.URL.Query().Get("to") == "" {
			t.Fatal("missing range params")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"busy": [
			{"start": "2026-02-02T13:00:00Z", "end": "2026-02-02T14:00:00Z"},
			{"start": "2026-02-02T09:00:00Z", "end": "2026-02-02T10:30:00Z"},
			{"start": "2026-02-02T10:00:00Z", "end": "2026-02-02T11:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	res := NewFreeBusyClient(srv.URL, 2*time.Second).FreeBusy(context.Background(), "cal-1", fbFrom, fbTo)
	if res.Degraded {
		t.Fatalf("unexpected degraded result: %s", res.Reason)
	}
	if len(res.Busy) != 2 {
		t.Fatalf("expected overlapping blocks to merge into 2, got %d", len(res.Busy))
	}
	if !res.Busy[0].End.Equal(time.Date(2026, 2, 2, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected merged interval %+v", res.Busy[0])
	}
}

func TestFreeBusy_UnconfiguredCalendarIsEmptyNotDegraded(t *testing.T) {
	c := NewFreeBusyClient("http://calendar.invalid", time.Second)
	res := c.FreeBusy(context.Background(), "", fbFrom, fbTo)
	if res.Degraded || len(res.Busy) != 0 {
		t.Fatalf("no calendar id should mean empty and not degraded, got %+v", res)
	}

	res = NewFreeBusyClient("", time.Second).FreeBusy(context.Background(), "cal-1", fbFrom, fbTo)
	if res.Degraded || len(res.Busy) != 0 {
		t.Fatalf("no base URL should mean empty and not degraded, got %+v", res)
	}
}

func TestFreeBusy_ServerErrorDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := NewFreeBusyClient(srv.URL, time.Second).FreeBusy(context.Background(), "cal-1", fbFrom, fbTo)
	if !res.Degraded {
		t.Fatal("5xx must degrade, not error")
	}
	if len(res.Busy) != 0 {
		t.Fatal("degraded result must contribute zero busy blocks")
	}
}

func TestFreeBusy_ConnectionFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing is listening any more

	res := NewFreeBusyClient(srv.URL, time.Second).FreeBusy(context.Background(), "cal-1", fbFrom, fbTo)
	if !res.Degraded || res.Reason == "" {
		t.Fatalf("connection failure must degrade with a reason, got %+v", res)
	}
}

func TestFreeBusy_MalformedBodyDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"busy": [`))
	}))
	defer srv.Close()

	res := NewFreeBusyClient(srv.URL, time.Second).FreeBusy(context.Background(), "cal-1", fbFrom, fbTo)
	if !res.Degraded {
		t.Fatal("malformed payload must degrade")
	}
}
