package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(StoreWrites.WithLabelValues("sqlite", "duplicate"))
	RecordStoreWrite("sqlite", "duplicate")
	RecordStoreWrite("sqlite", "duplicate")
	if got := testutil.ToFloat64(StoreWrites.WithLabelValues("sqlite", "duplicate")); got != before+2 {
		t.Errorf("store duplicate writes = %v, want %v", got, before+2)
	}

	before = testutil.ToFloat64(ScoringFailures.WithLabelValues("analyze"))
	RecordScoringFailure("analyze")
	if got := testutil.ToFloat64(ScoringFailures.WithLabelValues("analyze")); got != before+1 {
		t.Errorf("scoring failures = %v, want %v", got, before+1)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordHTTP("GET", "/health", 200, 5*time.Millisecond)
	RecordIngest("lexical", "ok")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{"newsentiment_http_request_duration_seconds", "newsentiment_ingest_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
