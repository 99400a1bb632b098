package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesMetrics(t *testing.T) {
	JobRuns.WithLabelValues("outbox", "ok").Inc()
	h := Handler()
	_ = Handler() // second call must not re-register

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `scheduler_job_runs_total{job="outbox",outcome="ok"}`) {
		t.Fatalf("job runs counter missing from output")
	}
}
