/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evaluate_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/reposcore/evaluate"
	"chainguard.dev/reposcore/rubric"
	"chainguard.dev/reposcore/usage"
)

// testRubric builds an n-criterion rubric of scored criteria worth 2 points
// each.
func testRubric(n int) *rubric.Rubric {
	r := &rubric.Rubric{}
	for i := 0; i < n; i++ {
		r.Criteria = append(r.Criteria, rubric.Criterion{
			Name: fmt.Sprintf("criterion-%02d", i),
			Kind: rubric.KindScored,
			ScoreLevels: []rubric.ScoreLevel{
				{Score: 0, Description: "absent"},
				{Score: 1, Description: "partial"},
				{Score: 2, Description: "complete"},
			},
		})
	}
	return r
}

// succeedWith returns an evaluator that scores every criterion the given
// score and reports fixed token usage.
func succeedWith(score int) evaluate.EvaluatorFunc {
	return func(ctx context.Context, c rubric.Criterion, digest string) (*evaluate.CriterionResult, *usage.Record, error) {
		return &evaluate.CriterionResult{
			Criterion: c.Name,
			Kind:      c.Kind,
			Score:     score,
			MaxScore:  c.MaxScore(),
			Reasoning: "looks fine",
		}, &usage.Record{Model: "test-model", InputTokens: 100, OutputTokens: 50}, nil
	}
}

func TestRunAllSucceed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := usage.NewLedger(usage.DefaultPricing())

	o, err := evaluate.New(succeedWith(2), ledger, evaluate.WithConcurrency(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := testRubric(10)
	ev, err := o.Run(ctx, r, "example/repo", "digest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := len(ev.Results), 10; got != want {
		t.Fatalf("got %d results, wanted %d", got, want)
	}
	// Aggregate ordering follows rubric declaration order regardless of
	// completion order.
	for i, res := range ev.Results {
		if got, want := res.Criterion, r.Criteria[i].Name; got != want {
			t.Errorf("result %d = %q, wanted %q", i, got, want)
		}
		if res.Status != evaluate.StatusCompleted {
			t.Errorf("result %d status = %q, wanted completed", i, res.Status)
		}
	}
	if got, want := ev.TotalScore, 20; got != want {
		t.Errorf("TotalScore = %d, wanted %d", got, want)
	}
	if got, want := ev.MaxTotalScore, 20; got != want {
		t.Errorf("MaxTotalScore = %d, wanted %d", got, want)
	}
	if !ev.Complete() {
		t.Error("Complete() = false, wanted true")
	}
	if len(ev.Failed) != 0 {
		t.Errorf("Failed = %v, wanted empty", ev.Failed)
	}

	// Usage from every task landed in the ledger.
	in, out := ledger.TotalTokens()
	if in != 1000 || out != 500 {
		t.Errorf("ledger totals = %d in / %d out, wanted 1000 / 500", in, out)
	}
}

// Two identical runs produce identical aggregates even though task completion
// order is nondeterministic under concurrency.
func TestRunDeterministicAggregate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := testRubric(8)

	run := func() *evaluate.Evaluation {
		o, err := evaluate.New(succeedWith(1), usage.NewLedger(usage.DefaultPricing()), evaluate.WithConcurrency(8))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ev, err := o.Run(ctx, r, "example/repo", "digest")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return ev
	}

	a, b := run(), run()
	for i := range a.Results {
		if a.Results[i].Criterion != b.Results[i].Criterion {
			t.Errorf("result %d ordering differs: %q vs %q", i, a.Results[i].Criterion, b.Results[i].Criterion)
		}
	}
	if a.TotalScore != b.TotalScore {
		t.Errorf("TotalScore differs: %d vs %d", a.TotalScore, b.TotalScore)
	}
}

func TestRunFailureIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := usage.NewLedger(usage.DefaultPricing())
	boom := errors.New("backend exploded")

	// Fail criteria 2 and 5; tokens were still consumed by the failures.
	eval := evaluate.EvaluatorFunc(func(ctx context.Context, c rubric.Criterion, digest string) (*evaluate.CriterionResult, *usage.Record, error) {
		rec := &usage.Record{Model: "test-model", InputTokens: 10, OutputTokens: 5}
		if c.Name == "criterion-02" || c.Name == "criterion-05" {
			return nil, rec, boom
		}
		return &evaluate.CriterionResult{
			Criterion: c.Name, Kind: c.Kind, Score: 2, MaxScore: c.MaxScore(),
		}, rec, nil
	})

	o, err := evaluate.New(eval, ledger, evaluate.WithConcurrency(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev, err := o.Run(ctx, testRubric(8), "example/repo", "digest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := len(ev.Results), 8; got != want {
		t.Fatalf("got %d results, wanted %d", got, want)
	}
	for _, res := range ev.Results {
		switch res.Criterion {
		case "criterion-02", "criterion-05":
			if res.Status != evaluate.StatusFailed {
				t.Errorf("%s status = %q, wanted failed", res.Criterion, res.Status)
			}
			if res.Score != 0 {
				t.Errorf("%s score = %d, wanted 0", res.Criterion, res.Score)
			}
			if res.Reasoning == "" {
				t.Errorf("%s has no failure reasoning", res.Criterion)
			}
		default:
			if res.Status != evaluate.StatusCompleted {
				t.Errorf("%s status = %q, wanted completed", res.Criterion, res.Status)
			}
		}
	}

	wantFailed := []string{"criterion-02", "criterion-05"}
	if len(ev.Failed) != len(wantFailed) {
		t.Fatalf("Failed = %v, wanted %v", ev.Failed, wantFailed)
	}
	for i := range wantFailed {
		if ev.Failed[i] != wantFailed[i] {
			t.Errorf("Failed[%d] = %q, wanted %q", i, ev.Failed[i], wantFailed[i])
		}
	}
	if got, want := ev.TotalScore, 12; got != want {
		t.Errorf("TotalScore = %d, wanted %d", got, want)
	}

	// Failed tasks still contributed their token usage.
	in, out := ledger.TotalTokens()
	if in != 80 || out != 40 {
		t.Errorf("ledger totals = %d in / %d out, wanted 80 / 40", in, out)
	}
}

func TestRunAllFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	boom := errors.New("backend exploded")
	eval := evaluate.EvaluatorFunc(func(ctx context.Context, c rubric.Criterion, digest string) (*evaluate.CriterionResult, *usage.Record, error) {
		return nil, nil, boom
	})

	o, err := evaluate.New(eval, usage.NewLedger(usage.DefaultPricing()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = o.Run(ctx, testRubric(4), "example/repo", "digest")
	if !errors.Is(err, evaluate.ErrAllFailed) {
		t.Errorf("got error %v, wanted ErrAllFailed", err)
	}
}

func TestRunEmptyRubric(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	o, err := evaluate.New(succeedWith(1), usage.NewLedger(usage.DefaultPricing()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := o.Run(ctx, &rubric.Rubric{}, "example/repo", "digest"); !errors.Is(err, evaluate.ErrNoCriteria) {
		t.Errorf("got error %v, wanted ErrNoCriteria", err)
	}
	if _, err := o.Run(ctx, nil, "example/repo", "digest"); !errors.Is(err, evaluate.ErrNoCriteria) {
		t.Errorf("got error %v, wanted ErrNoCriteria", err)
	}
}

// Cancelling mid-run yields a partial aggregate: already-settled criteria
// keep their results, the remainder is marked not-evaluated, and nothing is
// spuriously failed.
func TestRunCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	eval := evaluate.EvaluatorFunc(func(tctx context.Context, c rubric.Criterion, digest string) (*evaluate.CriterionResult, *usage.Record, error) {
		if calls.Add(1) == 4 {
			cancel()
			<-tctx.Done()
			return nil, nil, tctx.Err()
		}
		return &evaluate.CriterionResult{
			Criterion: c.Name, Kind: c.Kind, Score: 2, MaxScore: c.MaxScore(),
		}, &usage.Record{Model: "test-model", InputTokens: 10, OutputTokens: 5}, nil
	})

	o, err := evaluate.New(eval, usage.NewLedger(usage.DefaultPricing()), evaluate.WithConcurrency(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev, err := o.Run(ctx, testRubric(8), "example/repo", "digest")
	if err != nil {
		t.Fatalf("cancelled run returned error: %v", err)
	}

	if got, want := len(ev.Results), 8; got != want {
		t.Fatalf("got %d results, wanted %d", got, want)
	}

	completed, notEvaluated := 0, 0
	for _, res := range ev.Results {
		switch res.Status {
		case evaluate.StatusCompleted:
			completed++
		case evaluate.StatusNotEvaluated:
			notEvaluated++
		case evaluate.StatusFailed:
			t.Errorf("%s spuriously failed after cancellation", res.Criterion)
		}
	}
	if completed != 3 {
		t.Errorf("got %d completed, wanted 3", completed)
	}
	if notEvaluated != 5 {
		t.Errorf("got %d not evaluated, wanted 5", notEvaluated)
	}
	if ev.Complete() {
		t.Error("Complete() = true for a cancelled run")
	}
	if got, want := ev.TotalScore, 6; got != want {
		t.Errorf("TotalScore = %d, wanted %d", got, want)
	}
}

// A task that times out is a normal failure; the run continues.
func TestRunTaskTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	eval := evaluate.EvaluatorFunc(func(tctx context.Context, c rubric.Criterion, digest string) (*evaluate.CriterionResult, *usage.Record, error) {
		if c.Name == "criterion-01" {
			<-tctx.Done()
			return nil, nil, tctx.Err()
		}
		return &evaluate.CriterionResult{
			Criterion: c.Name, Kind: c.Kind, Score: 1, MaxScore: c.MaxScore(),
		}, nil, nil
	})

	o, err := evaluate.New(eval, usage.NewLedger(usage.DefaultPricing()),
		evaluate.WithConcurrency(2),
		evaluate.WithTaskTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev, err := o.Run(ctx, testRubric(3), "example/repo", "digest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ev.Results[1].Status; got != evaluate.StatusFailed {
		t.Errorf("timed out criterion status = %q, wanted failed", got)
	}
	if got, want := ev.TotalScore, 2; got != want {
		t.Errorf("TotalScore = %d, wanted %d", got, want)
	}
}

func TestRunProgressEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// The progress callback is invoked serially, so plain appends are safe.
	var events []evaluate.ProgressEvent
	o, err := evaluate.New(succeedWith(1), usage.NewLedger(usage.DefaultPricing()),
		evaluate.WithConcurrency(4),
		evaluate.WithProgress(func(ev evaluate.ProgressEvent) {
			events = append(events, ev)
		}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const n = 6
	if _, err := o.Run(ctx, testRubric(n), "example/repo", "digest"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := len(events), 2*n; got != want {
		t.Fatalf("got %d events, wanted %d", got, want)
	}

	started := make(map[string]bool)
	settledAt := make(map[string]int)
	for _, ev := range events {
		switch ev.Status {
		case evaluate.EventStarted:
			started[ev.Criterion] = true
		case evaluate.EventSucceeded, evaluate.EventFailed:
			if !started[ev.Criterion] {
				t.Errorf("%s settled before starting", ev.Criterion)
			}
			settledAt[ev.Criterion] = ev.Completed
		}
	}
	if got, want := len(settledAt), n; got != want {
		t.Errorf("got %d settled criteria, wanted %d", got, want)
	}
	if got, want := events[len(events)-1].Completed, n; got != want {
		t.Errorf("final Completed = %d, wanted %d", got, want)
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()
	ledger := usage.NewLedger(usage.DefaultPricing())

	if _, err := evaluate.New(nil, ledger); err == nil {
		t.Error("expected error for nil evaluator")
	}
	if _, err := evaluate.New(succeedWith(1), nil); err == nil {
		t.Error("expected error for nil ledger")
	}
	if _, err := evaluate.New(succeedWith(1), ledger, evaluate.WithConcurrency(0)); err == nil {
		t.Error("expected error for zero concurrency")
	}
	if _, err := evaluate.New(succeedWith(1), ledger, evaluate.WithTaskTimeout(0)); err == nil {
		t.Error("expected error for zero task timeout")
	}
}
