// Package metrics exposes service counters in the Prometheus text format.
// A nil *MetricsCollector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name
const Namespace = "filevault"

// MetricsCollector owns a private registry so tests and multiple servers in
// one process do not collide on the global one.
type MetricsCollector struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	uploadSessions   *prometheus.CounterVec
	uploadParts      prometheus.Counter
	uploadBytes      prometheus.Counter
	uploadsCompleted prometheus.Counter
	uploadFailures   *prometheus.CounterVec
	downloads        *prometheus.CounterVec
	downloadBytes    prometheus.Counter
	deletes          prometheus.Counter
	signedURLs       prometheus.Counter
	signatureDenied  prometheus.Counter
	batchTokens      prometheus.Counter
	batchArchives    *prometheus.CounterVec
	sessionsSwept    prometheus.Counter
}

// NewMetricsCollector registers all collectors on a fresh registry, along
// with the Go runtime and process collectors.
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time spent answering HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		uploadSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "upload_sessions_total",
			Help:      "Upload sessions initialized, by mode.",
		}, []string{"mode"}),
		uploadParts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "upload_parts_total",
			Help:      "Upload parts received.",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes committed by completed uploads.",
		}),
		uploadsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "uploads_completed_total",
			Help:      "Upload sessions finalized into stored files.",
		}),
		uploadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "upload_failures_total",
			Help:      "Upload completions that failed, by error kind.",
		}, []string{"kind"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "downloads_total",
			Help:      "File reads by route kind and whether a range was served.",
		}, []string{"via", "partial"}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes written to download responses.",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "deletes_total",
			Help:      "Stored files deleted.",
		}),
		signedURLs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "signed_urls_issued_total",
			Help:      "Signed URLs issued.",
		}),
		signatureDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "signature_rejections_total",
			Help:      "Signed URL requests rejected for a bad or expired signature.",
		}),
		batchTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batch_tokens_minted_total",
			Help:      "Batch download tokens minted.",
		}),
		batchArchives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batch_archives_total",
			Help:      "Batch ZIP archives streamed, by outcome.",
		}, []string{"outcome"}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "upload_sessions_swept_total",
			Help:      "Abandoned upload sessions removed by the sweeper.",
		}),
	}

	mc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		mc.httpRequests, mc.httpDuration,
		mc.uploadSessions, mc.uploadParts, mc.uploadBytes, mc.uploadsCompleted, mc.uploadFailures,
		mc.downloads, mc.downloadBytes, mc.deletes,
		mc.signedURLs, mc.signatureDenied,
		mc.batchTokens, mc.batchArchives,
		mc.sessionsSwept,
	)
	return mc
}

// Registry exposes the underlying registry
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}

// RecordHTTPRequest counts one finished request
func (mc *MetricsCollector) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if mc == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	mc.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	mc.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (mc *MetricsCollector) RecordSessionInit(mode string) {
	if mc == nil {
		return
	}
	mc.uploadSessions.WithLabelValues(mode).Inc()
}

func (mc *MetricsCollector) RecordPart() {
	if mc == nil {
		return
	}
	mc.uploadParts.Inc()
}

// RecordFileUpload counts a completed upload of size bytes
func (mc *MetricsCollector) RecordFileUpload(size int64) {
	if mc == nil {
		return
	}
	mc.uploadsCompleted.Inc()
	mc.uploadBytes.Add(float64(size))
}

func (mc *MetricsCollector) RecordUploadFailure(kind string) {
	if mc == nil {
		return
	}
	mc.uploadFailures.WithLabelValues(kind).Inc()
}

// RecordFileDownload counts a served read. via is "direct" or "signed".
func (mc *MetricsCollector) RecordFileDownload(via string, partial bool, bytes int64) {
	if mc == nil {
		return
	}
	mc.downloads.WithLabelValues(via, strconv.FormatBool(partial)).Inc()
	mc.downloadBytes.Add(float64(bytes))
}

func (mc *MetricsCollector) RecordFileDelete() {
	if mc == nil {
		return
	}
	mc.deletes.Inc()
}

func (mc *MetricsCollector) RecordSignedURL() {
	if mc == nil {
		return
	}
	mc.signedURLs.Inc()
}

func (mc *MetricsCollector) RecordSignatureRejected() {
	if mc == nil {
		return
	}
	mc.signatureDenied.Inc()
}

func (mc *MetricsCollector) RecordBatchToken() {
	if mc == nil {
		return
	}
	mc.batchTokens.Inc()
}

// RecordBatchArchive counts a streamed archive; outcome is "ok" or "error"
func (mc *MetricsCollector) RecordBatchArchive(outcome string) {
	if mc == nil {
		return
	}
	mc.batchArchives.WithLabelValues(outcome).Inc()
}

func (mc *MetricsCollector) RecordSessionsSwept(n int) {
	if mc == nil {
		return
	}
	mc.sessionsSwept.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format
func (mc *MetricsCollector) Handler() http.Handler {
	if mc == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// RegisterRoutes mounts the scrape endpoint on router
func (mc *MetricsCollector) RegisterRoutes(router gin.IRoutes, path string) {
	if path == "" {
		path = "/metrics"
	}
	router.GET(path, gin.WrapH(mc.Handler()))
}
