package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew_RegistersDistinctCollectorsPerAudit(t *testing.T) {
	a := New("audit-one")
	b := New("audit-two")

	a.PagesFetched.Inc()
	a.PagesFailed.WithLabelValues("timeout").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	body := rec.Body.String()

	if !strings.Contains(body, `audit="audit-one"`) {
		t.Errorf("expected audit-one's own metrics in its handler output, got:\n%s", body)
	}
	if strings.Contains(body, `audit="audit-two"`) {
		t.Errorf("audit-one's handler should not expose audit-two's metrics")
	}

	rec2 := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec2, req)
	body2 := rec2.Body.String()
	if !strings.Contains(body2, "siteaudit_pages_fetched_total") {
		t.Errorf("a freshly created collector should still report its registered counters at zero, got:\n%s", body2)
	}
	if !strings.Contains(body2, `audit="audit-two"`) {
		t.Errorf("expected audit-two's own const label, got:\n%s", body2)
	}
}

func TestNewNop_DoesNotPanic(t *testing.T) {
	c := NewNop()
	c.PagesFetched.Inc()
	c.QueueDepth.Set(3)
	c.WorkersBusy.Set(1)
}
