package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"feedbackloop/pkg/feedback"
)

func intPtr(v int) *int { return &v }

func TestPrometheusRecorder_Observe(t *testing.T) {
	rec := NewPrometheusRecorder(false)
	ctx := context.Background()

	records := []feedback.Record{
		{Outcome: feedback.OutcomeFeedback, Strategy: feedback.StrategyWhole, Feedback: "ok", ExitCode: intPtr(0), Duration: time.Second},
		{Outcome: feedback.OutcomeFeedback, Strategy: feedback.StrategySegment, Feedback: "ok", ExitCode: intPtr(0)},
		{Outcome: feedback.OutcomeDegraded, Strategy: feedback.StrategyRaw, Feedback: "junk", ExitCode: intPtr(1)},
		{Outcome: feedback.OutcomeCancelled, Strategy: feedback.StrategyEmpty, ExitCode: intPtr(-1)},
		{Outcome: feedback.OutcomeInvalidArguments},
	}
	for _, r := range records {
		if err := rec.Observe(ctx, r); err != nil {
			t.Fatalf("Observe() error = %v", err)
		}
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"feedback", testutil.ToFloat64(rec.invocationsTotal.WithLabelValues("feedback")), 2},
		{"degraded", testutil.ToFloat64(rec.invocationsTotal.WithLabelValues("degraded")), 1},
		{"invalid", testutil.ToFloat64(rec.invocationsTotal.WithLabelValues("invalid_arguments")), 1},
		{"strategy raw", testutil.ToFloat64(rec.strategyTotal.WithLabelValues("raw")), 1},
		{"exit 0", testutil.ToFloat64(rec.uiExitCodes.WithLabelValues("0")), 2},
		{"exit nonzero", testutil.ToFloat64(rec.uiExitCodes.WithLabelValues("nonzero")), 1},
		{"exit signal", testutil.ToFloat64(rec.uiExitCodes.WithLabelValues("signal")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if n := testutil.CollectAndCount(rec.strategyTotal); n != 4 {
		t.Errorf("strategy series = %d, want 4", n)
	}
}

func TestPrometheusRecorder_FeedbackBytes(t *testing.T) {
	rec := NewPrometheusRecorder(false)
	ctx := context.Background()
	_ = rec.Observe(ctx, feedback.Record{Outcome: feedback.OutcomeFeedback, Feedback: "0123456789"})
	_ = rec.Observe(ctx, feedback.Record{Outcome: feedback.OutcomeDegraded, Feedback: "abc"})
	_ = rec.Observe(ctx, feedback.Record{Outcome: feedback.OutcomeCancelled})

	families, err := rec.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	var family *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "feedback_loop_feedback_bytes" {
			family = mf
		}
	}
	if family == nil {
		t.Fatal("feedback_loop_feedback_bytes not gathered")
	}
	if family.GetType() != dto.MetricType_HISTOGRAM {
		t.Fatalf("type = %v, want histogram", family.GetType())
	}
	h := family.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetSampleCount())
	}
	if h.GetSampleSum() != 13 {
		t.Errorf("sample sum = %v, want 13", h.GetSampleSum())
	}
}

func TestPrometheusRecorder_WriteText(t *testing.T) {
	rec := NewPrometheusRecorder(false)
	_ = rec.Observe(context.Background(), feedback.Record{Outcome: feedback.OutcomeCancelled})

	var sb strings.Builder
	if err := rec.WriteText(&sb); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	out := sb.String()
	for _, want := range []string{
		`feedback_loop_invocations_total{outcome="cancelled"} 1`,
		"# TYPE feedback_loop_invocation_duration_seconds histogram",
		"feedback_loop_build_info{",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	rec := NewPrometheusRecorder(true)
	_ = rec.Observe(context.Background(), feedback.Record{Outcome: feedback.OutcomeFeedback, Feedback: "hello"})

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if n := testutil.CollectAndCount(rec.feedbackBytes); n != 1 {
		t.Errorf("feedback_bytes series = %d, want 1", n)
	}
}

func TestPrometheusRecorder_ListenAndServeStops(t *testing.T) {
	rec := NewPrometheusRecorder(false)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- rec.ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
