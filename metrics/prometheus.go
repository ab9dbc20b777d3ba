package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	steps     *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

func NewPrometheusRecorder() Recorder {
	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "splitpay",
			Name:      "events_total",
			Help:      "split payment flow event counters",
		},
		[]string{"type", "network"},
	)

	steps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "splitpay",
			Name:      "steps_total",
			Help:      "payment state machine transitions",
		},
		[]string{"step", "network"},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "splitpay",
			Name:      "step_latency_seconds",
			Help:      "split payment step latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "network"},
	)

	prometheus.MustRegister(counters, steps, histogram)

	return &PrometheusRecorder{
		counters:  counters,
		steps:     steps,
		histogram: histogram,
	}
}

// IncCounter routes state-machine transitions, which carry a "step"
// label, to the per-step vector; everything else lands in events_total.
func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	if step, ok := labels["step"]; ok {
		p.steps.With(prometheus.Labels{
			"step":    step,
			"network": labels["network"],
		}).Inc()
		return
	}
	p.counters.With(prometheus.Labels{
		"type":    name,
		"network": labels["network"],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"operation": name,
		"network":   labels["network"],
	}).Observe(d.Seconds())
}
