package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the webhook pipeline.
type PipelineMetrics struct {
	inboundTotal   *prometheus.CounterVec
	repliesTotal   *prometheus.CounterVec
	handoffTotal   *prometheus.CounterVec
	webhookLatency prometheus.Histogram
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "juliobot",
			Subsystem: "webhook",
			Name:      "inbound_messages_total",
			Help:      "Inbound messages by admission outcome",
		}, []string{"outcome"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "juliobot",
			Subsystem: "webhook",
			Name:      "replies_total",
			Help:      "Outbound replies by routing strategy and delivery status",
		}, []string{"strategy", "status"}),
		handoffTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "juliobot",
			Subsystem: "webhook",
			Name:      "handoff_total",
			Help:      "Human handoffs by trigger reason",
		}, []string{"reason"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "juliobot",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of full webhook batch processing",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.repliesTotal, m.handoffTotal, m.webhookLatency)
	return m
}

func (m *PipelineMetrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) ObserveReply(strategy, status string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(strategy, status).Inc()
}

func (m *PipelineMetrics) ObserveHandoff(reason string) {
	if m == nil {
		return
	}
	m.handoffTotal.WithLabelValues(reason).Inc()
}

func (m *PipelineMetrics) ObserveWebhookLatency(seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.Observe(seconds)
}
