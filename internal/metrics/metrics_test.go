package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.EventApplied("insert")
	m.EventApplied("insert")
	m.EventDropped()
	m.ViewOpened()
	m.ViewOpened()
	m.ViewClosed()
	m.Submitted("poll")

	if got := testutil.ToFloat64(m.eventsApplied.WithLabelValues("insert")); got != 2 {
		t.Fatalf("expected 2 inserts, got %v", got)
	}
	if got := testutil.ToFloat64(m.liveViews); got != 1 {
		t.Fatalf("expected 1 live view, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `live_response_submissions_total{type="poll"} 1`) {
		t.Fatalf("expected submissions metric in output:\n%s", body)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.EventApplied("update")
	m.EventDropped()
	m.ViewOpened()
	m.ViewClosed()
	m.Submitted("text")
}
