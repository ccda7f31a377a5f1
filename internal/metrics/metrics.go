package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "consultbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_submissions_total",
			Help:      "Booking submit attempts by outcome.",
		},
		[]string{"outcome"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheets_sync_tasks_total",
			Help:      "Spreadsheet sync tasks by final status.",
		},
		[]string{"status"},
	)

	activeSubmits = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "booking_submissions_in_flight",
			Help:      "Submissions currently handed to the submitter.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, submissions, syncTasks, activeSubmits)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncSubmission counts a submit attempt: confirmed, validation_failed,
// submission_failed, rate_limited or in_progress.
func IncSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

// IncSyncTask counts a processed spreadsheet task.
func IncSyncTask(status string) {
	syncTasks.WithLabelValues(status).Inc()
}

// TrackSubmit marks a submission in flight; call the returned func when done.
func TrackSubmit() func() {
	activeSubmits.Inc()
	return activeSubmits.Dec
}
