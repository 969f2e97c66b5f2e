/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package usage accumulates per-model token consumption over a single
// evaluation run and derives monetary cost from a pricing table.
//
// The ledger holds raw integer token counts and computes dollars only at
// read time, so repeated small additions never accumulate floating point
// drift. One ledger is created per run and discarded after the report is
// emitted.
package usage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Record is the token consumption of a single model invocation.
type Record struct {
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// ModelUsage is the read-side view of one model's accumulated consumption.
type ModelUsage struct {
	InputTokens  int64
	OutputTokens int64
	CostIn       float64
	CostOut      float64

	// Estimated is true when the cost was computed from the pricing table's
	// default rate rather than a matching model entry.
	Estimated bool
}

// Cost returns the model's combined input and output cost.
func (m ModelUsage) Cost() float64 { return m.CostIn + m.CostOut }

type tokenCounts struct {
	in  int64
	out int64
}

// Ledger accumulates token usage across concurrent task completions.
// Record is safe for concurrent use; every mutation is a single critical
// section, so no updates are lost. Totals only grow during a run.
type Ledger struct {
	pricing PricingTable
	metrics *Metrics

	mu     sync.Mutex
	totals map[string]tokenCounts
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMetrics mirrors every recorded token count to OpenTelemetry counters.
func WithMetrics(m *Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// NewLedger creates an empty ledger priced by the given table.
func NewLedger(pricing PricingTable, opts ...Option) *Ledger {
	l := &Ledger{
		pricing: pricing,
		totals:  make(map[string]tokenCounts),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record adds a usage record to the running totals for its model.
func (l *Ledger) Record(ctx context.Context, rec Record) {
	if rec.Model == "" || (rec.InputTokens == 0 && rec.OutputTokens == 0) {
		return
	}

	l.mu.Lock()
	t := l.totals[rec.Model]
	t.in += rec.InputTokens
	t.out += rec.OutputTokens
	l.totals[rec.Model] = t
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.RecordTokens(ctx, rec.Model, rec.InputTokens, rec.OutputTokens)
	}
}

// CostFor returns the accumulated cost for one model. The estimated flag is
// true when the pricing table had no entry for it.
func (l *Ledger) CostFor(model string) (cost float64, estimated bool) {
	l.mu.Lock()
	t, ok := l.totals[model]
	l.mu.Unlock()
	if !ok {
		return 0, false
	}

	price, estimated := l.pricing.PriceFor(model)
	return tokenCost(t.in, price.Input) + tokenCost(t.out, price.Output), estimated
}

// TotalCost returns the combined cost across all models.
func (l *Ledger) TotalCost() float64 {
	total := 0.0
	for _, u := range l.Breakdown() {
		total += u.Cost()
	}
	return total
}

// Breakdown returns a snapshot of per-model usage with derived costs. It is
// a pure function of current state and may be called mid-run for live
// display.
func (l *Ledger) Breakdown() map[string]ModelUsage {
	l.mu.Lock()
	snapshot := make(map[string]tokenCounts, len(l.totals))
	for model, t := range l.totals {
		snapshot[model] = t
	}
	l.mu.Unlock()

	out := make(map[string]ModelUsage, len(snapshot))
	for model, t := range snapshot {
		price, estimated := l.pricing.PriceFor(model)
		out[model] = ModelUsage{
			InputTokens:  t.in,
			OutputTokens: t.out,
			CostIn:       tokenCost(t.in, price.Input),
			CostOut:      tokenCost(t.out, price.Output),
			Estimated:    estimated,
		}
	}
	return out
}

// TotalTokens returns the summed input and output token counts across all
// models.
func (l *Ledger) TotalTokens() (in, out int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.totals {
		in += t.in
		out += t.out
	}
	return in, out
}

// Models returns the recorded model identifiers in sorted order.
func (l *Ledger) Models() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	models := make([]string, 0, len(l.totals))
	for m := range l.totals {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Summary renders a one-model-per-line cost summary suitable for logs.
func (l *Ledger) Summary() string {
	in, out := l.TotalTokens()
	s := fmt.Sprintf("tokens: %d input + %d output, cost: $%.4f", in, out, l.TotalCost())
	for _, model := range l.Models() {
		u := l.Breakdown()[model]
		note := ""
		if u.Estimated {
			note = " (estimated)"
		}
		s += fmt.Sprintf("\n  %s: %d in + %d out = $%.4f%s",
			model, u.InputTokens, u.OutputTokens, u.Cost(), note)
	}
	return s
}

// tokenCost converts a raw token count to dollars at a per-1K rate.
func tokenCost(tokens int64, pricePer1K float64) float64 {
	return float64(tokens) / 1000 * pricePer1K
}
