// Package metrics holds the Prometheus collectors of the lead engine.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	HTTPRequests      *prometheus.CounterVec
	HTTPLatency       *prometheus.HistogramVec
	InboundMessages   *prometheus.CounterVec
	LeadMessages      *prometheus.CounterVec
	OutboundMessages  *prometheus.CounterVec
	LeadsCreated      *prometheus.CounterVec
	StageTransitions  *prometheus.CounterVec
	FactsRecorded     *prometheus.CounterVec
	FactsDropped      *prometheus.CounterVec
	FollowUpsQueued   prometheus.Counter
	FollowUpOutcomes  *prometheus.CounterVec
	ClassifierLatency *prometheus.HistogramVec
	Errors            *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the process-wide metrics singleton.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = New(namespace, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return metricsInstance
}

// New builds collectors and registers them on reg. Tests pass a fresh
// prometheus.NewRegistry().
func New(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound lead messages by result.",
		}, []string{"result"}),
		LeadMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lead_messages_received_total",
			Help:      "Inbound messages stored on leads by channel.",
		}, []string{"channel"}),
		OutboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Outbound lead messages by kind and result.",
		}, []string{"kind", "result"}),
		LeadsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leads_created_total",
			Help:      "Leads created by source.",
		}, []string{"source"}),
		StageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Pipeline stage transitions by target stage and cause.",
		}, []string{"to", "cause"}),
		FactsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_recorded_total",
			Help:      "Audit facts stored by type.",
		}, []string{"type"}),
		FactsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_dropped_total",
			Help:      "Audit facts that could not be stored, by type.",
		}, []string{"type"}),
		FollowUpsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "followups_scheduled_total",
			Help:      "Follow-up jobs created.",
		}),
		FollowUpOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "followup_outcomes_total",
			Help:      "Follow-up attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		ClassifierLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_request_duration_seconds",
			Help:      "Latency distribution of classifier calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Collaborator errors grouped by component.",
		}, []string{"component"}),
		gatherer: gatherer,
	}

	reg.MustRegister(
		m.HTTPRequests,
		m.HTTPLatency,
		m.InboundMessages,
		m.LeadMessages,
		m.OutboundMessages,
		m.LeadsCreated,
		m.StageTransitions,
		m.FactsRecorded,
		m.FactsDropped,
		m.FollowUpsQueued,
		m.FollowUpOutcomes,
		m.ClassifierLatency,
		m.Errors,
	)
	return m
}

func (m *Metrics) InboundMessage(result string) {
	if m == nil {
		return
	}
	m.InboundMessages.WithLabelValues(result).Inc()
}

func (m *Metrics) LeadMessage(channel string) {
	if m == nil {
		return
	}
	m.LeadMessages.WithLabelValues(channel).Inc()
}

// OutboundMessage counts a send attempt, kind is ai, agent, voice or welcome.
func (m *Metrics) OutboundMessage(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.OutboundMessages.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) LeadCreated(source string) {
	if m == nil {
		return
	}
	m.LeadsCreated.WithLabelValues(source).Inc()
}

func (m *Metrics) StageTransition(to, cause string) {
	if m == nil {
		return
	}
	m.StageTransitions.WithLabelValues(to, cause).Inc()
}

func (m *Metrics) FactRecorded(factType string) {
	if m == nil {
		return
	}
	m.FactsRecorded.WithLabelValues(factType).Inc()
}

func (m *Metrics) FactDropped(factType string) {
	if m == nil {
		return
	}
	m.FactsDropped.WithLabelValues(factType).Inc()
}

func (m *Metrics) FollowUpsScheduled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FollowUpsQueued.Add(float64(n))
}

func (m *Metrics) FollowUpOutcome(channel, outcome string) {
	if m == nil {
		return
	}
	m.FollowUpOutcomes.WithLabelValues(channel, outcome).Inc()
}

// ObserveClassifier records the latency of one classifier call.
func (m *Metrics) ObserveClassifier(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ClassifierLatency.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}

func (m *Metrics) Error(component string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(component).Inc()
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the collectors in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	h := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
