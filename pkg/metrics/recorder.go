// Package metrics records Prometheus metrics for feedback invocations.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"feedbackloop/pkg/feedback"
	"feedbackloop/pkg/version"
)

const namespace = "feedback_loop"

// PrometheusRecorder implements feedback.Observer using Prometheus metrics kept
// on a private registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	invocationsTotal *prometheus.CounterVec
	strategyTotal    *prometheus.CounterVec
	uiDuration       *prometheus.HistogramVec
	uiExitCodes      *prometheus.CounterVec
	feedbackBytes    prometheus.Histogram
}

// NewPrometheusRecorder creates a recorder with its own registry. When
// withRuntime is set the Go runtime and process collectors are registered too.
func NewPrometheusRecorder(withRuntime bool) *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build information of the running server",
		ConstLabels: prometheus.Labels{"version": version.Version, "commit": version.Commit},
	}, func() float64 { return 1 })

	return &PrometheusRecorder{
		registry: reg,
		invocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of request_feedback invocations by outcome",
			},
			[]string{"outcome"},
		),
		strategyTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_strategy_total",
				Help:      "Total number of decoded UI outputs by the decoder step that produced them",
			},
			[]string{"strategy"},
		),
		uiDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Wall time of invocations, dominated by the user answering",
				Buckets:   []float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"outcome"},
		),
		uiExitCodes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ui_exit_total",
				Help:      "Total number of feedback UI exits by exit code class",
			},
			[]string{"code"},
		),
		feedbackBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feedback_bytes",
			Help:      "Size of returned feedback text",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}),
	}
}

// Registry exposes the recorder's registry for handlers and text dumps.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// Observe records one finished invocation.
func (p *PrometheusRecorder) Observe(_ context.Context, rec feedback.Record) error {
	outcome := string(rec.Outcome)
	p.invocationsTotal.WithLabelValues(outcome).Inc()
	p.uiDuration.WithLabelValues(outcome).Observe(rec.Duration.Seconds())

	if rec.Strategy != "" {
		p.strategyTotal.WithLabelValues(string(rec.Strategy)).Inc()
	}
	if rec.ExitCode != nil {
		p.uiExitCodes.WithLabelValues(exitClass(*rec.ExitCode)).Inc()
	}
	if rec.Outcome == feedback.OutcomeFeedback || rec.Outcome == feedback.OutcomeDegraded {
		p.feedbackBytes.Observe(float64(len(rec.Feedback)))
	}
	return nil
}

func exitClass(code int) string {
	switch {
	case code == 0:
		return "0"
	case code < 0:
		return "signal"
	default:
		return "nonzero"
	}
}
