package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePass(t *testing.T) {
	m, err := NewSyncMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSyncMetrics: %v", err)
	}
	m.ObservePass(Pass{Duration: time.Second, Pushed: 2, Pruned: 1})
	m.ObservePass(Pass{FailedPhase: "pull", Pushed: 1})

	if got := testutil.ToFloat64(m.actionsTotal.WithLabelValues("push")); got != 3 {
		t.Errorf("push actions = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.passesTotal.WithLabelValues("error", "pull")); got != 1 {
		t.Errorf("failed pull passes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.passesTotal.WithLabelValues("success", "none")); got != 1 {
		t.Errorf("successful passes = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *SyncMetrics
	m.ObservePass(Pass{Pushed: 1})
	m.SetNotes(3)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewSyncMetrics(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSyncMetrics(reg); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, _ := NewSyncMetrics(prometheus.NewRegistry())
	m.SetNotes(4)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "notesync_notes 4") {
		t.Errorf("metrics output missing gauge:\n%s", w.Body.String())
	}
}
