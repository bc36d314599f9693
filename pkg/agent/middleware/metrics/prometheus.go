package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports oracle metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the oracle metrics with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_oracle_requests_total",
				Help: "Oracle requests by model, stage, status and error type",
			},
			[]string{"model", "stage", "status", "error_type"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_oracle_tokens_total",
				Help: "Tokens consumed by oracle requests",
			},
			[]string{"model", "stage", "type"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentflow_oracle_request_duration_seconds",
				Help:    "Oracle request latency",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"model", "stage"},
		),
	}
	reg.MustRegister(r.requestsTotal, r.tokensTotal, r.requestDuration)
	return r
}

// ObserveRequest implements Recorder.
func (p *PrometheusRecorder) ObserveRequest(model, stage string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.requestsTotal.WithLabelValues(model, stage, status, errorType).Inc()
	if success {
		p.tokensTotal.WithLabelValues(model, stage, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, stage, "completion").Add(float64(completionTokens))
	}
	p.requestDuration.WithLabelValues(model, stage).Observe(duration.Seconds())
}
