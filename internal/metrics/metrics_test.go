package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHTTPRequest(t *testing.T) {
	// Reset metrics
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "/api/v1/leads/export", "200", 0.123)

	counter := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/leads/export", "200"))
	if counter != 1.0 {
		t.Errorf("Expected counter to be 1.0, got %f", counter)
	}
}

func TestRecordExport(t *testing.T) {
	ExportsTotal.Reset()
	LeadsDebitedTotal.Reset()
	ExportArtifactBytes.Reset()

	RecordExport("export", "csv", 37, 4096)
	RecordExport("export", "xlsx", 10, 8192)
	RecordExport("search", "", 5, 0)

	csv := testutil.ToFloat64(ExportsTotal.WithLabelValues("export", "csv"))
	if csv != 1.0 {
		t.Errorf("Expected csv exports to be 1.0, got %f", csv)
	}

	debited := testutil.ToFloat64(LeadsDebitedTotal.WithLabelValues("export"))
	if debited != 47.0 {
		t.Errorf("Expected 47 leads debited for exports, got %f", debited)
	}

	searched := testutil.ToFloat64(LeadsDebitedTotal.WithLabelValues("search"))
	if searched != 5.0 {
		t.Errorf("Expected 5 leads debited for search, got %f", searched)
	}

	if n := testutil.CollectAndCount(ExportArtifactBytes); n != 2 {
		t.Errorf("Expected 2 artifact size series, got %d", n)
	}
}

func TestRecordQueryDistinguishesEmptyFromFailure(t *testing.T) {
	EmptyResultsTotal.Reset()
	QueryFailuresTotal.Reset()

	RecordQuery("export", 0.01, 0)
	RecordQuery("export", 0.01, 12)
	RecordQueryFailure("export")
	RecordQueryFailure("export")

	empty := testutil.ToFloat64(EmptyResultsTotal.WithLabelValues("export"))
	if empty != 1.0 {
		t.Errorf("Expected 1 empty result, got %f", empty)
	}

	failures := testutil.ToFloat64(QueryFailuresTotal.WithLabelValues("export"))
	if failures != 2.0 {
		t.Errorf("Expected 2 query failures, got %f", failures)
	}
}

func TestRecordQuotaRejection(t *testing.T) {
	QuotaRejectionsTotal.Reset()

	RecordQuotaRejection("no_license")
	RecordQuotaRejection("insufficient")
	RecordQuotaRejection("insufficient")

	insufficient := testutil.ToFloat64(QuotaRejectionsTotal.WithLabelValues("insufficient"))
	if insufficient != 2.0 {
		t.Errorf("Expected 2 insufficient rejections, got %f", insufficient)
	}
}

func TestRecordKeyMetrics(t *testing.T) {
	KeysActivatedTotal.Reset()
	before := testutil.ToFloat64(KeysGeneratedTotal)

	RecordKeysGenerated(25)
	RecordKeyActivated(false)
	RecordKeyActivated(true)
	RecordKeyActivated(true)

	if got := testutil.ToFloat64(KeysGeneratedTotal) - before; got != 25.0 {
		t.Errorf("Expected 25 generated keys, got %f", got)
	}

	merged := testutil.ToFloat64(KeysActivatedTotal.WithLabelValues("merged"))
	if merged != 2.0 {
		t.Errorf("Expected 2 merged activations, got %f", merged)
	}
}

func TestRecordDatasetUpload(t *testing.T) {
	DatasetUploadsTotal.Reset()

	RecordDatasetUpload("success", 1<<20)
	RecordDatasetUpload("invalid", 0)

	success := testutil.ToFloat64(DatasetUploadsTotal.WithLabelValues("success"))
	if success != 1.0 {
		t.Errorf("Expected 1 successful upload, got %f", success)
	}
}

func TestRecordStorageOperation(t *testing.T) {
	StorageOperationsTotal.Reset()
	StorageBytesTransferred.Reset()

	RecordStorageOperation("upload", "success", 1.234, 1048576)

	counter := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("upload", "success"))
	if counter != 1.0 {
		t.Errorf("Expected storage operation counter to be 1.0, got %f", counter)
	}

	bytes := testutil.ToFloat64(StorageBytesTransferred.WithLabelValues("upload"))
	if bytes != 1048576.0 {
		t.Errorf("Expected bytes transferred to be 1048576.0, got %f", bytes)
	}
}

func TestRecordCacheAccess(t *testing.T) {
	CacheHitsTotal.Reset()
	CacheMissesTotal.Reset()

	RecordCacheAccess("stats", true)
	RecordCacheAccess("stats", true)
	RecordCacheAccess("stats", false)

	hits := testutil.ToFloat64(CacheHitsTotal.WithLabelValues("stats"))
	if hits != 2.0 {
		t.Errorf("Expected cache hits to be 2.0, got %f", hits)
	}

	misses := testutil.ToFloat64(CacheMissesTotal.WithLabelValues("stats"))
	if misses != 1.0 {
		t.Errorf("Expected cache misses to be 1.0, got %f", misses)
	}
}

func TestRecordEventProcessed(t *testing.T) {
	EventsProcessedTotal.Reset()

	RecordEventProcessed("export", "success")
	RecordEventProcessed("export", "error")

	ok := testutil.ToFloat64(EventsProcessedTotal.WithLabelValues("export", "success"))
	if ok != 1.0 {
		t.Errorf("Expected 1 processed event, got %f", ok)
	}
}

func TestRecordError(t *testing.T) {
	ErrorsTotal.Reset()

	RecordError("api", "validation")
	RecordError("worker", "database")
	RecordError("api", "validation")

	apiErrors := testutil.ToFloat64(ErrorsTotal.WithLabelValues("api", "validation"))
	if apiErrors != 2.0 {
		t.Errorf("Expected API validation errors to be 2.0, got %f", apiErrors)
	}
}

func TestServerHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("Expected OK body, got %q", rec.Body.String())
	}
}

func BenchmarkRecordHTTPRequest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordHTTPRequest("GET", "/api/v1/catalog", "200", 0.123)
	}
}

func BenchmarkRecordExport(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordExport("export", "csv", 50, 4096)
	}
}
