/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package usage

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics exposes OpenTelemetry counters for token consumption, with the
// model identifier as a dimension. Counter creation failures degrade to
// no-op counters rather than failing the run.
type Metrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
}

// NewMetrics creates token counters on the named meter.
func NewMetrics(meterName string) *Metrics {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	inputTokens, err := meter.Int64Counter("reposcore.token.input",
		metric.WithDescription("The number of input tokens consumed"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create input token counter, metrics will be disabled", "error", err, "meter", meterName)
		inputTokens = noop.Int64Counter{}
	}

	outputTokens, err := meter.Int64Counter("reposcore.token.output",
		metric.WithDescription("The number of output tokens consumed"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create output token counter, metrics will be disabled", "error", err, "meter", meterName)
		outputTokens = noop.Int64Counter{}
	}

	return &Metrics{
		inputTokens:  inputTokens,
		outputTokens: outputTokens,
	}
}

// RecordTokens adds the given counts to the token counters, labeled by model.
func (m *Metrics) RecordTokens(ctx context.Context, model string, inputTokens, outputTokens int64) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.inputTokens.Add(ctx, inputTokens, attrs)
	m.outputTokens.Add(ctx, outputTokens, attrs)
}
