package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal", Name: "http_requests_total", Help: "Handled API requests",
	}, []string{"route", "method", "code"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portal", Name: "http_request_seconds", Help: "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
	HandlerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "portal", Name: "handler_errors_total", Help: "Requests answered with 5xx",
	})
	SubmissionEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal", Name: "submission_events_total", Help: "Submission state changes",
	}, []string{"type"})
	UngradedBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "portal", Name: "ungraded_submissions", Help: "Submissions waiting for a grade",
	})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "portal", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPDuration, HandlerErrors, SubmissionEvents, UngradedBacklog, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

func ObserveRequest(route, method string, code int, d time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	HTTPDuration.WithLabelValues(route, method).Observe(d.Seconds())
	if code >= 500 {
		HandlerErrors.Inc()
	}
}
