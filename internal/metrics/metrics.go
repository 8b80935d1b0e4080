// Package metrics registers the Prometheus collectors for the pipeline and
// the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dharsanguruparan/imagefilter/internal/model"
)

var (
	fileTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagefilter_file_transitions_total",
			Help: "File status transitions by source and target status.",
		},
		[]string{"from", "to"},
	)

	imageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagefilter_image_outcomes_total",
			Help: "Recorded image classification outcomes by type.",
		},
		[]string{"type"},
	)

	visionBatches = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imagefilter_vision_batch_duration_seconds",
			Help:    "Duration of text-detection batch calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	tasksHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagefilter_tasks_total",
			Help: "Pipeline tasks handled by kind and result.",
		},
		[]string{"kind", "result"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagefilter_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imagefilter_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// FileTransition counts a status change.
func FileTransition(from, to model.FileStatus) {
	fileTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// ImageOutcome counts a recorded classification.
func ImageOutcome(t model.ImageType) {
	imageOutcomes.WithLabelValues(t.String()).Inc()
}

// VisionBatch observes one call to the text-detection service.
func VisionBatch(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	visionBatches.WithLabelValues(result).Observe(d.Seconds())
}

// Task counts one handled pipeline task.
func Task(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	tasksHandled.WithLabelValues(kind, result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency. route maps a request to a
// low-cardinality label such as the matched route pattern.
func Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			label := route(r)
			if label == "" {
				label = "unmatched"
			}
			httpRequests.WithLabelValues(r.Method, label, strconv.Itoa(rec.status)).Inc()
			httpDuration.WithLabelValues(r.Method, label).Observe(time.Since(start).Seconds())
		})
	}
}

// RoutePrefix is a fallback route labeller that keeps only the first path
// segment.
func RoutePrefix(r *http.Request) string {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	return "/" + parts[0]
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
