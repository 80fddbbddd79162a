package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/micro-nova/callaudio-go/internal/metrics"
)

func TestHardwareOp(t *testing.T) {
	m := metrics.New()

	m.HardwareOp("set_mode", nil)
	m.HardwareOp("set_mode", errors.New("boom"))
	m.HardwareOp("request_focus", nil)

	if got := testutil.ToFloat64(m.HardwareOps.WithLabelValues("set_mode")); got != 2 {
		t.Errorf("set_mode ops = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HardwareErrors.WithLabelValues("set_mode")); got != 1 {
		t.Errorf("set_mode errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HardwareErrors.WithLabelValues("request_focus")); got != 0 {
		t.Errorf("request_focus errors = %v, want 0", got)
	}
}

func TestCounters(t *testing.T) {
	m := metrics.New()

	m.Event("set_mute")
	m.Event("set_mute")
	m.FocusRequest("ring")
	m.StateChanged()
	m.Defect()
	m.SetQueueDepth(3)

	if got := testutil.ToFloat64(m.Events.WithLabelValues("set_mute")); got != 2 {
		t.Errorf("events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FocusRequests.WithLabelValues("ring")); got != 1 {
		t.Errorf("focus requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AudioStateChanges); got != 1 {
		t.Errorf("state changes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Defects); got != 1 {
		t.Errorf("defects = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth); got != 3 {
		t.Errorf("queue depth = %v, want 3", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	// None of these may panic.
	m.HardwareOp("x", errors.New("x"))
	m.Event("x")
	m.FocusRequest("x")
	m.StateChanged()
	m.Defect()
	m.SetQueueDepth(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil handler status = %d, want 404", rec.Code)
	}
}

func TestHandler(t *testing.T) {
	m := metrics.New()
	m.Defect()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"callaudio_defects_total 1", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
