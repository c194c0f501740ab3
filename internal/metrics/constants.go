package metrics

// HTTP metric names
const (
	MetricNameHTTPRequestsTotal    = "ledger_http_requests_total"
	MetricNameHTTPRequestDuration  = "ledger_http_request_duration_seconds"
	MetricNameHTTPRequestsInFlight = "ledger_http_requests_in_flight"
)

// Ledger metric names
const (
	MetricNameTransitionsTotal     = "ledger_transitions_total"
	MetricNameValueStaked          = "ledger_value_staked_total"
	MetricNameValuePaidOut         = "ledger_value_paid_out_total"
	MetricNameEventsPublished      = "ledger_events_published_total"
	MetricNameEventPublishFailures = "ledger_event_publish_failures_total"
)

const (
	HelpTextHTTPRequestsTotal    = "Total number of HTTP requests"
	HelpTextHTTPRequestDuration  = "HTTP request latency in seconds"
	HelpTextHTTPRequestsInFlight = "Current number of HTTP requests being served"
	HelpTextTransitionsTotal     = "Ledger transitions by operation and result code"
	HelpTextValueStaked          = "Total value moved into market pools"
	HelpTextValuePaidOut         = "Total value paid out to winners"
	HelpTextEventsPublished      = "Events published after commit"
	HelpTextEventPublishFailures = "Events whose publication to a sink failed"
)

// Labels
const (
	LabelMethod    = "method"
	LabelPath      = "path"
	LabelStatus    = "status"
	LabelOperation = "operation"
	LabelResult    = "result"
	LabelType      = "type"
)

// ResultOK is the result label of a successful transition
const ResultOK = "ok"

// HTTPLatencyBuckets are histogram buckets for request latency
var HTTPLatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
