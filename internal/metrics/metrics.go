package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameHTTPRequestsTotal,
			Help: HelpTextHTTPRequestsTotal,
		},
		[]string{LabelMethod, LabelPath, LabelStatus},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricNameHTTPRequestDuration,
			Help:    HelpTextHTTPRequestDuration,
			Buckets: HTTPLatencyBuckets,
		},
		[]string{LabelMethod, LabelPath},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameHTTPRequestsInFlight,
			Help: HelpTextHTTPRequestsInFlight,
		},
	)
)

// Ledger Metrics
var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameTransitionsTotal,
			Help: HelpTextTransitionsTotal,
		},
		[]string{LabelOperation, LabelResult},
	)

	ValueStaked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameValueStaked,
			Help: HelpTextValueStaked,
		},
	)

	ValuePaidOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameValuePaidOut,
			Help: HelpTextValuePaidOut,
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameEventsPublished,
			Help: HelpTextEventsPublished,
		},
		[]string{LabelType},
	)

	EventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameEventPublishFailures,
			Help: HelpTextEventPublishFailures,
		},
		[]string{LabelType},
	)
)

// RecordTransition counts one transition attempt. An empty code means success.
func RecordTransition(operation, code string) {
	if code == "" {
		code = ResultOK
	}
	TransitionsTotal.WithLabelValues(operation, code).Inc()
}
