// Package metrics provides Prometheus metrics for the in-house matchmaking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Queue
	queueDepth    *prometheus.GaugeVec
	queueEnqueues prometheus.Counter
	queueDequeues prometheus.Counter
	queueRejects  *prometheus.CounterVec
	queuedPlayers prometheus.Gauge

	// Matchmaking search
	searches         *prometheus.CounterVec
	searchLatency    prometheus.Histogram
	searchCandidates prometheus.Histogram
	balanceScore     prometheus.Histogram

	// Ready checks
	readyChecksOpen     prometheus.Gauge
	readyChecksResolved *prometheus.CounterVec
	readyCheckLatency   prometheus.Histogram
	staleSignals        prometheus.Counter

	// Sessions and ratings
	sessionsActive   prometheus.Gauge
	sessionsVoided   prometheus.Counter
	disputesOpened   prometheus.Counter
	disputesResolved *prometheus.CounterVec
	ratingsUpdated   prometheus.Counter
	scoringErrors    prometheus.Counter
	leaderboardSize  *prometheus.GaugeVec

	// Outbound events
	eventQueueSize     prometheus.Gauge
	eventQueueCapacity prometheus.Gauge
	eventsPublished    prometheus.Counter
	eventsDropped      prometheus.Counter
	eventSinkErrors    *prometheus.CounterVec
	workerCount        prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	duplicateRequests   prometheus.Counter
	wsClients           prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "inhouse",
		subsystem:        "matchmaking",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() {
	m.queueDepth = m.gaugeVec("queue_depth", "Participants queued per channel and role", "channel", "role")
	m.queueEnqueues = m.counter("queue_enqueues_total", "Accepted enqueue requests")
	m.queueDequeues = m.counter("queue_dequeues_total", "Accepted dequeue requests")
	m.queueRejects = m.counterVec("queue_rejects_total", "Rejected enqueue requests by reason", "reason")
	m.queuedPlayers = m.gauge("queued_participants", "Distinct participants present in any queue")

	m.searches = m.counterVec("searches_total", "Matchmaking searches by outcome", "outcome")
	m.searchLatency = m.histogram("search_latency_milliseconds", "Matchmaking search latency in milliseconds",
		[]float64{0.1, 0.5, 1, 5, 10, 50, 100, 250, 500, 1000, 5000})
	m.searchCandidates = m.histogram("search_candidates", "Distinct compositions scored per search",
		prometheus.ExponentialBuckets(1, 4, 12))
	m.balanceScore = m.histogram("balance_score", "Balance score of proposed compositions",
		[]float64{-0.5, -0.4, -0.3, -0.2, -0.15, -0.1, -0.05, -0.02, 0})

	m.readyChecksOpen = m.gauge("ready_checks_open", "Ready checks awaiting resolution")
	m.readyChecksResolved = m.counterVec("ready_checks_resolved_total", "Resolved ready checks by outcome", "outcome")
	m.readyCheckLatency = m.histogram("ready_check_latency_milliseconds", "Time from proposal to ready check resolution",
		m.histogramBuckets)
	m.staleSignals = m.counter("ready_check_stale_signals_total", "Signals that arrived after their ready check resolved")

	m.sessionsActive = m.gauge("sessions_active", "Game sessions that are confirmed but not yet scored or voided")
	m.sessionsVoided = m.counter("sessions_voided_total", "Sessions voided by an administrator")
	m.disputesOpened = m.counter("disputes_opened_total", "Result disputes opened")
	m.disputesResolved = m.counterVec("disputes_resolved_total", "Result disputes resolved by outcome", "outcome")
	m.ratingsUpdated = m.counter("ratings_updated_total", "Sessions scored and applied to ratings")
	m.scoringErrors = m.counter("scoring_errors_total", "Sessions that failed to score")
	m.leaderboardSize = m.gaugeVec("leaderboard_size", "Rated participants per role", "role")

	m.eventQueueSize = m.gauge("event_queue_size", "Outbound events waiting for delivery")
	m.eventQueueCapacity = m.gauge("event_queue_capacity", "Outbound event queue capacity")
	m.eventsPublished = m.counter("events_published_total", "Outbound events accepted by the event queue")
	m.eventsDropped = m.counter("events_dropped_total", "Outbound events dropped because the queue was full or closed")
	m.eventSinkErrors = m.counterVec("event_sink_errors_total", "Outbound event delivery errors by sink", "sink")
	m.workerCount = m.gauge("event_worker_count", "Running outbound event workers")

	m.httpRequests = promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "http_requests_total",
		Help: "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.duplicateRequests = m.counter("duplicate_requests_total", "Requests skipped because their idempotency key was seen")
	m.wsClients = m.gauge("ws_clients", "Connected websocket event subscribers")
}

// UpdateQueueDepth sets the depth of one (channel, role) queue.
func UpdateQueueDepth(channel, role string, depth int) {
	globalManager.queueDepth.WithLabelValues(channel, role).Set(float64(depth))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueues.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeues.Inc() }

// RecordQueueReject counts a rejected enqueue.
func RecordQueueReject(reason string) { globalManager.queueRejects.WithLabelValues(reason).Inc() }

// UpdateQueuedParticipants sets the distinct queued participant count.
func UpdateQueuedParticipants(n int) { globalManager.queuedPlayers.Set(float64(n)) }

// RecordSearch counts a matchmaking search with its outcome and latency.
func RecordSearch(outcome string, latencyMs float64, candidates int) {
	globalManager.searches.WithLabelValues(outcome).Inc()
	globalManager.searchLatency.Observe(latencyMs)
	if candidates > 0 {
		globalManager.searchCandidates.Observe(float64(candidates))
	}
}

// RecordBalanceScore observes the score of a proposed composition.
func RecordBalanceScore(score float64) { globalManager.balanceScore.Observe(score) }

// RecordReadyCheckOpened bumps the open ready check gauge.
func RecordReadyCheckOpened() { globalManager.readyChecksOpen.Inc() }

// RecordReadyCheckResolved records a resolution and its latency.
func RecordReadyCheckResolved(outcome string, latencyMs float64) {
	globalManager.readyChecksOpen.Dec()
	globalManager.readyChecksResolved.WithLabelValues(outcome).Inc()
	globalManager.readyCheckLatency.Observe(latencyMs)
}

// RecordStaleSignal counts a signal that lost the race with resolution.
func RecordStaleSignal() { globalManager.staleSignals.Inc() }

// UpdateSessionsActive sets the active session gauge.
func UpdateSessionsActive(n int) { globalManager.sessionsActive.Set(float64(n)) }

// RecordSessionVoided counts an admin void.
func RecordSessionVoided() { globalManager.sessionsVoided.Inc() }

// RecordDisputeOpened counts an opened dispute.
func RecordDisputeOpened() { globalManager.disputesOpened.Inc() }

// RecordDisputeResolved counts a resolved dispute.
func RecordDisputeResolved(outcome string) { globalManager.disputesResolved.WithLabelValues(outcome).Inc() }

// RecordRatingsUpdated counts a scored session.
func RecordRatingsUpdated() { globalManager.ratingsUpdated.Inc() }

// RecordScoringError counts a session that could not be scored.
func RecordScoringError() { globalManager.scoringErrors.Inc() }

// UpdateLeaderboardSize sets the number of rated participants for a role.
func UpdateLeaderboardSize(role string, n int) {
	globalManager.leaderboardSize.WithLabelValues(role).Set(float64(n))
}

// UpdateEventQueueSize sets the outbound backlog.
func UpdateEventQueueSize(n int) { globalManager.eventQueueSize.Set(float64(n)) }

// UpdateEventQueueCapacity sets the outbound queue capacity.
func UpdateEventQueueCapacity(n int) { globalManager.eventQueueCapacity.Set(float64(n)) }

// RecordEventPublished counts an accepted outbound event.
func RecordEventPublished() { globalManager.eventsPublished.Inc() }

// RecordEventDropped counts an outbound event that could not be queued.
func RecordEventDropped() { globalManager.eventsDropped.Inc() }

// RecordEventSinkError counts a failed delivery to a sink.
func RecordEventSinkError(sink string) { globalManager.eventSinkErrors.WithLabelValues(sink).Inc() }

// UpdateWorkerCount sets the running event worker count.
func UpdateWorkerCount(n int) { globalManager.workerCount.Set(float64(n)) }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordDuplicateRequest counts a replayed idempotency key.
func RecordDuplicateRequest() { globalManager.duplicateRequests.Inc() }

// UpdateWSClients sets the connected websocket subscriber count.
func UpdateWSClients(n int) { globalManager.wsClients.Set(float64(n)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
