package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordInvocation("simple-function", "http", "success", 12)
	m.RecordInvocation("simple-function", "http", "success", 3)
	m.RecordError("queue-function", "decode")
	m.RecordDocumentInserted("mongo")
	m.RecordTriggerMessage("nats", "nak")

	if got := testutil.ToFloat64(m.InvocationsTotal.WithLabelValues("simple-function", "http", "success")); got != 2 {
		t.Errorf("invocations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.InvocationErrors.WithLabelValues("queue-function", "decode")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DocumentsInserted.WithLabelValues("mongo")); got != 1 {
		t.Errorf("documents = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TriggerMessages.WithLabelValues("nats", "nak")); got != 1 {
		t.Errorf("trigger messages = %v, want 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordInvocation("f", "http", "success", 1)
	m.RecordError("f", "unknown")
	m.RecordDocumentInserted("memory")
	m.RecordTriggerMessage("redis", "ack")
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("nimbus_functions", prometheus.NewRegistry())
	m.RecordInvocation("write-function", "http", "failed", 40)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `nimbus_functions_invocations_total{function="write-function",status="failed",trigger="http"} 1`) {
		t.Errorf("metrics output missing invocation counter:\n%s", rec.Body.String())
	}
}
