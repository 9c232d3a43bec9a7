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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/taskapply/pkg/logging"
	"github.com/AleutianAI/taskapply/services/apply/config"
)

// Exit codes.
const (
	exitOK       = 0
	exitConflict = 1
	exitFailure  = 2
)

// exitError carries the process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath  string
	logLevel    string
	logDir      string
	trace       bool
	metricsFile string
	jsonOutput  bool

	stdout io.Writer
	stderr io.Writer
}

// newRootCmd builds the command tree writing to stdout and stderr.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "taskapply",
		Short: "Apply the diff of a remote coding task to the local working tree",
		Long: `taskapply reads a task response, extracts its diff and applies it to the
git working tree that contains the current directory. Files that cannot be
merged cleanly are rewritten with conflict markers for manual resolution.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "settings file (default: "+config.DefaultFileName+" in the repository directory, if present)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&opts.logDir, "log-dir", "", "directory for JSON log files")
	flags.BoolVar(&opts.trace, "trace", false, "print OpenTelemetry traces and metrics to stderr")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print a JSON report even on a terminal")

	rootCmd.AddCommand(newApplyCmd(opts), newCheckCmd(opts))
	return rootCmd
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// Flag and argument errors from cobra itself.
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitFailure
}

// loadConfig resolves the settings file and applies flag overrides.
func (o *globalOptions) loadConfig(repoDir string) (*config.Config, error) {
	path := o.configPath
	if path == "" {
		candidate := filepath.Join(repoDir, config.DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logDir != "" {
		cfg.Logging.Dir = o.logDir
	}
	if o.trace {
		cfg.Telemetry.Exporter = "stdout"
	}
	if o.metricsFile != "" {
		cfg.Telemetry.MetricsFile = o.metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the settings.
func (o *globalOptions) newLogger(cfg *config.Config) *logging.Logger {
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "taskapply",
		JSON:    cfg.Logging.JSON,
		Output:  o.stderr,
	})
}

// styled reports whether human-facing output should be rendered with
// styles: stdout is a terminal and --json was not given.
func (o *globalOptions) styled() bool {
	if o.jsonOutput {
		return false
	}
	f, ok := o.stdout.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
