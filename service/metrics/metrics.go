package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Lookup service metrics
	lookupCallsTotal   *prometheus.CounterVec
	lookupCallDuration *prometheus.HistogramVec
	lookupRetries      *prometheus.CounterVec

	// Inventory metrics
	inventoryLoadsTotal   *prometheus.CounterVec
	inventoryLoadDuration *prometheus.HistogramVec
	inventorySize         *prometheus.HistogramVec
	mergeDroppedTotal     *prometheus.CounterVec
	staleResultsTotal     *prometheus.CounterVec
	activeSessions        prometheus.Gauge

	// Exchange metrics
	exchangesTotal   *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec

	// Ledger RPC metrics
	ledgerCallsTotal   *prometheus.CounterVec
	ledgerCallDuration *prometheus.HistogramVec

	// Workflow metrics
	exchangeWorkflowDuration *prometheus.HistogramVec
	activityDuration         *prometheus.HistogramVec

	// Database metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		lookupCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lookup_calls_total",
				Help: "Total number of collection lookup calls by status",
			},
			[]string{"status"},
		),
		lookupCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lookup_call_duration_seconds",
				Help:    "Duration of collection lookup calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"status"},
		),
		lookupRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lookup_retries_total",
				Help: "Total number of collection lookup retry attempts",
			},
			[]string{"reason"},
		),

		inventoryLoadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inventory_loads_total",
				Help: "Total number of inventory loads by status",
			},
			[]string{"status"},
		),
		inventoryLoadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inventory_load_duration_seconds",
				Help:    "Duration of inventory loads including lookup and merge",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"status"},
		),
		inventorySize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inventory_size",
				Help:    "Number of records per loaded inventory by membership",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
			},
			[]string{"membership"},
		),
		mergeDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inventory_merge_dropped_total",
				Help: "Total number of raw records or collections dropped while merging",
			},
			[]string{"reason"},
		),
		staleResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inventory_stale_results_total",
				Help: "Total number of load results discarded because a newer load superseded them",
			},
			[]string{"source"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sessions_active",
				Help: "Number of open inventory sessions",
			},
		),

		exchangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchanges_total",
				Help: "Total number of exchange submissions by outcome and reason",
			},
			[]string{"outcome", "reason"},
		),
		exchangeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exchange_duration_seconds",
				Help:    "Duration of exchange submissions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),

		ledgerCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_calls_total",
				Help: "Total number of ledger RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		ledgerCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_call_duration_seconds",
				Help:    "Duration of ledger RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 60.0, 300.0},
			},
			[]string{"method"},
		),

		exchangeWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exchange_workflow_duration_seconds",
				Help:    "Duration of exchange workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exchange_activity_duration_seconds",
				Help:    "Duration of exchange workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"activity", "status"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Lookup metric helpers

// RecordLookupCall records a collection lookup call with duration.
func (m *Metrics) RecordLookupCall(status string, duration float64) {
	m.lookupCallsTotal.WithLabelValues(status).Inc()
	m.lookupCallDuration.WithLabelValues(status).Observe(duration)
}

// RecordLookupRetry records a retry attempt against the lookup service.
func (m *Metrics) RecordLookupRetry(reason string) {
	m.lookupRetries.WithLabelValues(reason).Inc()
}

// Inventory metric helpers

// RecordInventoryLoad records one aggregator load.
func (m *Metrics) RecordInventoryLoad(status string, duration float64) {
	m.inventoryLoadsTotal.WithLabelValues(status).Inc()
	m.inventoryLoadDuration.WithLabelValues(status).Observe(duration)
}

// RecordInventorySize records the size of a freshly merged inventory.
func (m *Metrics) RecordInventorySize(listed, owned int) {
	m.inventorySize.WithLabelValues("listed").Observe(float64(listed))
	m.inventorySize.WithLabelValues("owned").Observe(float64(owned))
}

// RecordMergeDropped records records or collections dropped by the merger.
// Zero counts are ignored.
func (m *Metrics) RecordMergeDropped(reason string, count int) {
	if count <= 0 {
		return
	}
	m.mergeDroppedTotal.WithLabelValues(reason).Add(float64(count))
}

// RecordStaleResult records a load result discarded as superseded.
func (m *Metrics) RecordStaleResult(source string) {
	m.staleResultsTotal.WithLabelValues(source).Inc()
}

// RecordSessionChange records a change in the number of open sessions.
func (m *Metrics) RecordSessionChange(delta float64) {
	m.activeSessions.Add(delta)
}

// Exchange metric helpers

// RecordExchange records one exchange submission.
func (m *Metrics) RecordExchange(outcome, reason string, duration float64) {
	m.exchangesTotal.WithLabelValues(outcome, reason).Inc()
	m.exchangeDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordLedgerCall records a ledger RPC call with duration.
func (m *Metrics) RecordLedgerCall(method string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ledgerCallsTotal.WithLabelValues(method, status).Inc()
	m.ledgerCallDuration.WithLabelValues(method).Observe(duration)
}

// Workflow metric helpers

// RecordWorkflowDuration records exchange workflow duration.
func (m *Metrics) RecordWorkflowDuration(outcome string, duration float64) {
	m.exchangeWorkflowDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.activityDuration.WithLabelValues(activity, status).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
