package main

import (
	"context"
	"fmt"
	"time"

	"feedbackloop/pkg/config"
	"feedbackloop/pkg/exec"
	"feedbackloop/pkg/feedback"
	"feedbackloop/pkg/logx"
	"feedbackloop/pkg/metrics"
	"feedbackloop/pkg/persistence"
	"feedbackloop/pkg/tools"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *logx.Logger
	recorder *metrics.PrometheusRecorder
	store    *persistence.Store
	handler  *feedback.Handler
	provider *tools.ToolProvider
}

// newApp wires executor, supervisor, decoder, observers and tool provider.
// History is opened only when enabled; failure to open it is logged and the
// server runs without history.
func newApp(ctx context.Context, cfg *config.Config, withRuntimeMetrics bool) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logx.NewLogger("feedback-loop"),
		recorder: metrics.NewPrometheusRecorder(withRuntimeMetrics),
	}

	executor := exec.NewLocalExec()
	if !executor.Available() {
		return nil, fmt.Errorf("executor %s is not available", executor.Name())
	}

	opts := exec.DefaultExecOpts()
	opts.WorkDir = cfg.UI.Dir
	opts.Env = cfg.UI.Env
	opts.Timeout = cfg.UI.Timeout

	supervisor := feedback.NewSupervisor(executor, cfg.UI.Command, opts, logx.NewLogger("supervisor"))

	observers := []feedback.Observer{a.recorder}
	if cfg.History.Enabled {
		store, err := persistence.Open(ctx, cfg.History.Path)
		if err != nil {
			a.logger.Warn("History disabled: %v", err)
		} else {
			a.store = store
			observers = append(observers, store)
			a.pruneHistory(ctx)
		}
	}

	a.handler = feedback.NewHandler(supervisor, feedback.NewDecoder(cfg.Decoder.MaxRawLength), logx.NewLogger("handler"), observers...)

	a.provider = tools.NewProvider(tools.ToolContext{Invoker: a.handler}, tools.DefaultTools)
	a.provider.Alias(cfg.Server.ToolName, tools.ToolRequestFeedback)

	return a, nil
}

func (a *app) pruneHistory(ctx context.Context) {
	if a.cfg.History.Retention <= 0 {
		return
	}
	if _, err := a.store.Prune(ctx, time.Now().Add(-a.cfg.History.Retention)); err != nil {
		a.logger.Warn("History prune failed: %v", err)
	}
}

// Close releases the history database.
func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
