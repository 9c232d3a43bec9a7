// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/taskapply/services/apply"
	"github.com/AleutianAI/taskapply/services/apply/config"
	"github.com/AleutianAI/taskapply/services/apply/conflict"
	"github.com/AleutianAI/taskapply/services/apply/task"
	"github.com/AleutianAI/taskapply/services/apply/telemetry"
)

type taskOptions struct {
	taskPath string
	repoDir  string
}

func addTaskFlags(cmd *cobra.Command, o *taskOptions) {
	cmd.Flags().StringVar(&o.taskPath, "task", "", "task response JSON file")
	cmd.Flags().StringVar(&o.repoDir, "repo", "", "directory inside the target working tree (default: current directory)")
	_ = cmd.MarkFlagRequired("task")
}

func newApplyCmd(g *globalOptions) *cobra.Command {
	o := &taskOptions{}
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a task's diff to the working tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApply(cmd.Context(), g, o)
		},
	}
	addTaskFlags(cmd, o)
	return cmd
}

func newCheckCmd(g *globalOptions) *cobra.Command {
	o := &taskOptions{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a task's diff and print the entries it would apply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(g, o)
		},
	}
	addTaskFlags(cmd, o)
	return cmd
}

// runApply loads settings and the task, applies it and reports.
func runApply(ctx context.Context, g *globalOptions, o *taskOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := newReporter(g)

	cfg, err := g.loadConfig(o.repoDir)
	if err != nil {
		return out.fatal(err)
	}
	root := g.newLogger(cfg)
	defer root.Close()
	logger := root.With(slog.String("command", "apply"))
	if path := root.FilePath(); path != "" {
		logger.Debug("Logging to file", slog.String("path", path))
	}

	provider, err := telemetry.Init(ctx, telemetryConfig(cfg, g))
	if err != nil {
		return out.fatal(err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	t, err := task.Load(o.taskPath)
	if err != nil {
		logger.Error("Task load failed", slog.String("path", o.taskPath), slog.String("error", err.Error()))
		return out.fatal(err)
	}
	logger.Info("Task loaded", slog.String("task_id", t.ID()), slog.String("path", o.taskPath))

	svc := apply.New(cfg, logger.Slog())
	outcome, applyErr := svc.ApplyTask(ctx, t, o.repoDir)

	if cfg.Telemetry.MetricsFile != "" {
		if err := provider.WriteMetrics(cfg.Telemetry.MetricsFile); err != nil {
			logger.Warn("Metrics export failed", slog.String("error", err.Error()))
		}
	}

	code := exitCode(applyErr)
	out.outcome(t, outcome, applyErr, code)
	if code == exitOK {
		return nil
	}
	return &exitError{code: code, err: applyErr}
}

// runCheck parses the task without touching the tree.
func runCheck(g *globalOptions, o *taskOptions) error {
	out := newReporter(g)

	cfg, err := g.loadConfig(o.repoDir)
	if err != nil {
		return out.fatal(err)
	}
	root := g.newLogger(cfg)
	defer root.Close()
	logger := root.With(slog.String("command", "check"))

	t, err := task.Load(o.taskPath)
	if err != nil {
		logger.Error("Task load failed", slog.String("path", o.taskPath), slog.String("error", err.Error()))
		return out.fatal(err)
	}

	plan, err := apply.New(cfg, logger.Slog()).PlanTask(t, o.repoDir)
	if err != nil {
		logger.Error("Task rejected", slog.String("task_id", t.ID()), slog.String("error", err.Error()))
		return out.fatal(err)
	}
	logger.Info("Task checked", slog.String("task_id", plan.TaskID), slog.Int("entries", len(plan.Entries)))
	out.plan(t, plan)
	return nil
}

func telemetryConfig(cfg *config.Config, g *globalOptions) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.Writer = g.stderr
	if cfg.Telemetry.Exporter == telemetry.ExporterStdout {
		tc.TraceExporter = telemetry.ExporterStdout
		tc.MetricExporter = telemetry.ExporterStdout
	}
	// The textfile export needs the Prometheus reader, which replaces the
	// stdout metric exporter.
	if cfg.Telemetry.MetricsFile != "" {
		tc.MetricExporter = telemetry.ExporterPrometheus
	}
	return tc
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, conflict.ErrMergeConflict):
		return exitConflict
	default:
		return exitFailure
	}
}
