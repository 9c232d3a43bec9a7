// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), DefaultConfig())
	require.NoError(t, err)

	assert.Nil(t, p.TracerProvider())
	assert.Nil(t, p.MeterProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.ErrorIs(t, p.WriteMetrics(filepath.Join(t.TempDir(), "m.prom")), ErrNoRegistry)
}

func TestInit_UnknownExporter(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"trace", Config{TraceExporter: "jaeger"}},
		{"metric", Config{MetricExporter: "otlp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Init(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnknownExporter))
		})
	}
}

func TestInit_StdoutTrace(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterStdout
	cfg.Writer = &buf

	p, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, p.TracerProvider())

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "apply.test_span")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "apply.test_span")
}

func TestInit_StdoutMetrics(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.MetricExporter = ExporterStdout
	cfg.Writer = &buf

	p, err := Init(context.Background(), cfg)
	require.NoError(t, err)

	counter, err := p.MeterProvider().Meter("test").Int64Counter("taskapply_test_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "taskapply_test_total")
}

func TestWriteMetrics_Prometheus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricExporter = ExporterPrometheus

	p, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	counter, err := p.MeterProvider().Meter("test").Int64Counter("taskapply_files")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	path := filepath.Join(t.TempDir(), "taskapply.prom")
	require.NoError(t, p.WriteMetrics(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "taskapply_files_total")
	assert.NotContains(t, string(data), "go_goroutines", "runtime collectors are not registered")
}
