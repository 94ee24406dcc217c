package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	tokenExchangeTotal *prometheus.CounterVec

	executionCreateTotal  *prometheus.CounterVec
	resolutionAttempts    prometheus.Histogram
	conversationsStarted  prometheus.Counter
	conversationRequests  prometheus.Gauge
	conversationsRecycled prometheus.Counter

	relayTotal            *prometheus.CounterVec
	relayDuration         prometheus.Histogram
	relayFragmentsTotal   prometheus.Counter
	relayFragmentsSkipped prometheus.Counter
	relayDegradedTotal    prometheus.Counter

	promptTotal    *prometheus.CounterVec
	promptDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			tokenExchangeTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "token_exchange_total",
					Help: "Total credential exchanges by status.",
				},
				[]string{"status"},
			),
			executionCreateTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "execution_create_total",
					Help: "Total quick-command executions submitted by status.",
				},
				[]string{"status"},
			),
			resolutionAttempts: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "conversation_resolution_attempts",
					Help:    "Callback polls needed before a conversation id appeared.",
					Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
				},
			),
			conversationsStarted: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "conversations_started_total",
					Help: "Total conversations started on the platform.",
				},
			),
			conversationRequests: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "conversation_requests",
					Help: "Requests spent on the current conversation.",
				},
			),
			conversationsRecycled: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "conversations_recycled_total",
					Help: "Conversations replaced after hitting the request cap.",
				},
			),
			relayTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relay_total",
					Help: "Total chat relay calls by status.",
				},
				[]string{"status"},
			),
			relayDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "relay_duration_seconds",
					Help:    "Chat relay duration in seconds, stream included.",
					Buckets: prometheus.DefBuckets,
				},
			),
			relayFragmentsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "relay_fragments_total",
					Help: "Total streamed answer fragments accumulated.",
				},
			),
			relayFragmentsSkipped: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "relay_fragments_skipped_total",
					Help: "Streamed fragments skipped as malformed.",
				},
			),
			relayDegradedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "relay_degraded_total",
					Help: "Relay answers flagged as likely degraded.",
				},
			),
			promptTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "prompt_total",
					Help: "Total orchestrated prompts by status.",
				},
				[]string{"status"},
			),
			promptDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "prompt_duration_seconds",
					Help:    "End-to-end prompt duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.tokenExchangeTotal,
			m.executionCreateTotal,
			m.resolutionAttempts,
			m.conversationsStarted,
			m.conversationRequests,
			m.conversationsRecycled,
			m.relayTotal,
			m.relayDuration,
			m.relayFragmentsTotal,
			m.relayFragmentsSkipped,
			m.relayDegradedTotal,
			m.promptTotal,
			m.promptDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordTokenExchange(success bool) {
	getMetrics().tokenExchangeTotal.WithLabelValues(statusLabel(success)).Inc()
}

func RecordExecutionCreate(success bool) {
	getMetrics().executionCreateTotal.WithLabelValues(statusLabel(success)).Inc()
}

func RecordResolutionAttempts(attempts int) {
	getMetrics().resolutionAttempts.Observe(float64(attempts))
}

func RecordConversationStarted() {
	m := getMetrics()
	m.conversationsStarted.Inc()
	m.conversationRequests.Set(0)
}

func RecordConversationRecycled() {
	getMetrics().conversationsRecycled.Inc()
}

func SetConversationRequests(count int) {
	getMetrics().conversationRequests.Set(float64(count))
}

func RecordRelay(success bool, duration time.Duration) {
	m := getMetrics()
	m.relayTotal.WithLabelValues(statusLabel(success)).Inc()
	m.relayDuration.Observe(duration.Seconds())
}

func RecordRelayFragment() {
	getMetrics().relayFragmentsTotal.Inc()
}

func RecordRelayFragmentSkipped() {
	getMetrics().relayFragmentsSkipped.Inc()
}

func RecordRelayDegraded() {
	getMetrics().relayDegradedTotal.Inc()
}

func RecordPrompt(success bool, duration time.Duration) {
	m := getMetrics()
	m.promptTotal.WithLabelValues(statusLabel(success)).Inc()
	m.promptDuration.Observe(duration.Seconds())
}
