package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpjleads_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cnpjleads_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Export Metrics
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpjleads_exports_total",
			Help: "Total number of completed exports",
		},
		[]string{"kind", "format"},
	)

	LeadsDebitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpjleads_leads_debited_total",
			Help: "Total number of lead units debited from license keys",
		},
		[]string{"kind"},
	)

	ExportArtifactBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cnpjleads_export_artifact_bytes",
			Help:    "Size of materialized export files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
		},
		[]string{"format"},
	)

	QuotaRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpjleads_quota_rejections_total",
			Help: "Requests refused because the user had no funded license key",
		},
		[]string{"reason"},
	)

	// Query Metrics
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cnpjleads_query_duration_seconds",
			Help:    "Dataset query latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"mode"},
	)

	QueryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpjleads_query_failures_total",
			Help: "Dataset queries that failed to execute",
		},
		[]string{"mode"},
	)

	EmptyResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpjleads_empty_results_total",
			Help: "Dataset queries that matched no rows",
		},
		[]string{"mode"},
	)

	RowsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cnpjleads_rows_returned",
			Help:    "Rows returned per dataset query",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 10000},
		},
		[]string{"mode"},
	)

	// Dataset Metrics
	DatasetUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpjleads_dataset_uploads_total",
			Help: "Total number of dataset uploads",
		},
		[]string{"status"},
	)

	DatasetUploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cnpjleads_dataset_upload_size_bytes",
			Help:    "Size of uploaded dataset files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 14), // 1MB to 8GB
		},
	)

	// License Metrics
	KeysGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cnpjleads_keys_generated_total",
			Help: "Total number of license keys generated",
		},
	)

	KeysActivatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpjleads_keys_activated_total",
			Help: "Total number of license key activations",
		},
		[]string{"mode"},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpjleads_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cnpjleads_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StorageBytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpjleads_storage_bytes_transferred_total",
			Help: "Total bytes transferred to/from storage",
		},
		[]string{"operation"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpjleads_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpjleads_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Worker Metrics
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpjleads_events_processed_total",
			Help: "Audit events consumed by the worker",
		},
		[]string{"type", "status"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpjleads_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordExport records a debited export of rows lead units
func RecordExport(kind, format string, rows int, artifactBytes int64) {
	ExportsTotal.WithLabelValues(kind, format).Inc()
	LeadsDebitedTotal.WithLabelValues(kind).Add(float64(rows))
	if format != "" {
		ExportArtifactBytes.WithLabelValues(format).Observe(float64(artifactBytes))
	}
}

// RecordQuotaRejection records a request refused by the ledger
func RecordQuotaRejection(reason string) {
	QuotaRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordQuery records a successful dataset query
func RecordQuery(mode string, duration float64, rows int) {
	QueryDuration.WithLabelValues(mode).Observe(duration)
	RowsReturned.WithLabelValues(mode).Observe(float64(rows))
	if rows == 0 {
		EmptyResultsTotal.WithLabelValues(mode).Inc()
	}
}

// RecordQueryFailure records a dataset query that could not run. It is
// counted apart from queries that matched nothing.
func RecordQueryFailure(mode string) {
	QueryFailuresTotal.WithLabelValues(mode).Inc()
}

// RecordDatasetUpload records an upload attempt
func RecordDatasetUpload(status string, size int64) {
	DatasetUploadsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		DatasetUploadSizeBytes.Observe(float64(size))
	}
}

// RecordKeysGenerated records newly generated license keys
func RecordKeysGenerated(count int) {
	KeysGeneratedTotal.Add(float64(count))
}

// RecordKeyActivated records a key activation, either bound or merged
func RecordKeyActivated(merged bool) {
	if merged {
		KeysActivatedTotal.WithLabelValues("merged").Inc()
	} else {
		KeysActivatedTotal.WithLabelValues("bound").Inc()
	}
}

// RecordStorageOperation records a storage operation
func RecordStorageOperation(operation, status string, duration float64, bytesTransferred int64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	StorageOperationDuration.WithLabelValues(operation).Observe(duration)
	StorageBytesTransferred.WithLabelValues(operation).Add(float64(bytesTransferred))
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordEventProcessed records an audit event handled by the worker
func RecordEventProcessed(eventType, status string) {
	EventsProcessedTotal.WithLabelValues(eventType, status).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
