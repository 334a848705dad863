package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics exposes counters/gauges/histograms for the relay flows.
type RelayMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	replyWaits     prometheus.Gauge
	replyOutcomes  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Total inbound WhatsApp webhook deliveries",
		}, []string{"event_type", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"status"}),
		replyWaits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Subsystem: "pending",
			Name:      "reply_waits",
			Help:      "Reply waits currently registered",
		}),
		replyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "pending",
			Name:      "reply_outcomes_total",
			Help:      "Terminal outcomes of reply waits",
		}, []string{"outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.replyWaits, m.replyOutcomes, m.webhookLatency)
	return m
}

func (m *RelayMetrics) ObserveInbound(eventType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, status).Inc()
}

func (m *RelayMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *RelayMetrics) SetReplyWaits(n int) {
	if m == nil {
		return
	}
	m.replyWaits.Set(float64(n))
}

func (m *RelayMetrics) ObserveReplyOutcome(outcome string) {
	if m == nil {
		return
	}
	m.replyOutcomes.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}
