// Package external fetches busy time from an organization's linked
// external calendar. The lookup is strictly best-effort: any failure
// degrades to an empty busy set so availability computation can never
// be aborted by the integration.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/arifhasnat/bookwell/services/booking-service/internal/availability"
)

// Result is the outcome of a free/busy lookup. Degraded means the
// calendar was configured but unreachable; the caller logs the reason
// and proceeds with the (empty) busy set.
type Result struct {
	Busy     []availability.Interval
	Degraded bool
	Reason   string
}

// BusySource is what the availability handler consumes.
type BusySource interface {
	FreeBusy(ctx context.Context, calendarID string, from, to time.Time) Result
}

// FreeBusyClient queries the calendar provider's free/busy endpoint.
type FreeBusyClient struct {
	baseURL string
	client  *http.Client
}

func NewFreeBusyClient(baseURL string, timeout time.Duration) *FreeBusyClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &FreeBusyClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// FreeBusy returns the calendar's busy intervals inside [from, to). An
// unconfigured calendar contributes nothing and is not degraded; every
// failure mode after that point is.
func (c *FreeBusyClient) FreeBusy(ctx context.Context, calendarID string, from, to time.Time) Result {
	if c == nil || c.baseURL == "" || strings.TrimSpace(calendarID) == "" {
		return Result{}
	}

	endpoint := fmt.Sprintf("%s/v1/calendars/%s/freebusy?from=%s&to=%s",
		c.baseURL,
		url.PathEscape(calendarID),
		url.QueryEscape(from.UTC().Format(time.RFC3339)),
		url.QueryEscape(to.UTC().Format(time.RFC3339)),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return degraded("build request: " + err.Error())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return degraded("request failed: " + err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return degraded(fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	var payload struct {
		Busy []struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"busy"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return degraded("decode response: " + err.Error())
	}

	intervals := make([]availability.Interval, 0, len(payload.Busy))
	for _, b := range payload.Busy {
		intervals = append(intervals, availability.Interval{Start: b.Start, End: b.End})
	}
	// Providers return unordered, possibly overlapping blocks.
	return Result{Busy: availability.MergeIntervals(intervals)}
}

func degraded(reason string) Result {
	return Result{Degraded: true, Reason: reason}
}
