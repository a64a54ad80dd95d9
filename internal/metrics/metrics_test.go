package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordCards("basic", 3)
	m.RecordLLMFailure("timeout")
	m.RecordDocument("ok")
	m.RecordRun("completed", time.Second)
	m.SetConfiguredWorkers(2)
	m.RecordPush("create_only", 1, 1, 0.5)
	if m.Registry() != nil {
		t.Error("expected nil registry")
	}
}

func TestRecordValues(t *testing.T) {
	m := New(nil)
	m.RecordCards("basic", 3)
	m.RecordCards("basic", 2)
	m.RecordLLMFailure("rate_limited")
	m.SetConfiguredWorkers(4)
	m.RecordPush("create_or_update", 3, 1, 0.75)

	if got := testutil.ToFloat64(m.CardsGenerated.WithLabelValues("basic")); got != 5 {
		t.Errorf("expected 5 basic cards, got %v", got)
	}
	if got := testutil.ToFloat64(m.LLMFailures.WithLabelValues("rate_limited")); got != 1 {
		t.Errorf("expected 1 rate limit failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.ConfiguredWorkers); got != 4 {
		t.Errorf("expected 4 workers, got %v", got)
	}
	if got := testutil.ToFloat64(m.PushSuccessRatio); got != 0.75 {
		t.Errorf("expected ratio 0.75, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New(nil)
	m.RecordDocument("failed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `ankiforge_documents_total{status="failed"} 1`) {
		t.Errorf("expected documents_total in output:\n%s", rec.Body.String())
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	New(nil)
	New(nil)
}
