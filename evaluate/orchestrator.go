/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package evaluate drives a set of independent criterion evaluations to
// completion with bounded concurrency, isolating per-criterion failures and
// accumulating token usage into a ledger as tasks settle.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"chainguard.dev/reposcore/rubric"
	"chainguard.dev/reposcore/usage"
)

var (
	// ErrNoCriteria is returned when a run is started with an empty rubric.
	ErrNoCriteria = errors.New("rubric has no criteria")
	// ErrAllFailed is returned when every criterion evaluation failed and no
	// meaningful aggregate exists.
	ErrAllFailed = errors.New("all criterion evaluations failed")
)

// EventStatus is a criterion task's progress transition.
type EventStatus string

const (
	// EventStarted fires when a criterion's evaluation begins.
	EventStarted EventStatus = "started"
	// EventSucceeded fires when a criterion's evaluation completes.
	EventSucceeded EventStatus = "succeeded"
	// EventFailed fires when a criterion's evaluation fails.
	EventFailed EventStatus = "failed"
)

// ProgressEvent is a status-transition notification. Events are delivered in
// the order transitions occur, which under concurrency is not the rubric's
// declaration order.
type ProgressEvent struct {
	Criterion string
	Status    EventStatus

	// Completed is the cumulative number of settled criteria (succeeded or
	// failed) after this event.
	Completed int
	Total     int
}

// ProgressFunc observes progress events. It is invoked serially, in
// transition order, and must not block.
type ProgressFunc func(ProgressEvent)

const (
	defaultConcurrency = 3
	defaultTaskTimeout = 5 * time.Minute
)

// Orchestrator runs one evaluation per rubric criterion against an Evaluator
// with bounded concurrency. Failures are isolated per criterion; the run as
// a whole only fails when the rubric is empty or zero criteria complete.
type Orchestrator struct {
	evaluator   Evaluator
	ledger      *usage.Ledger
	concurrency int
	taskTimeout time.Duration
	progress    ProgressFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithConcurrency bounds how many evaluations run in flight simultaneously.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) error {
		if n <= 0 {
			return fmt.Errorf("concurrency must be positive, got %d", n)
		}
		o.concurrency = n
		return nil
	}
}

// WithTaskTimeout bounds each individual evaluation. A timeout is treated
// like any other evaluation failure: the criterion is marked failed and the
// run continues.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		if d <= 0 {
			return fmt.Errorf("task timeout must be positive, got %v", d)
		}
		o.taskTimeout = d
		return nil
	}
}

// WithProgress registers a progress observer.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) error {
		o.progress = fn
		return nil
	}
}

// New creates an Orchestrator. The ledger receives every usage record
// produced during the run, including records from failed tasks.
func New(evaluator Evaluator, ledger *usage.Ledger, opts ...Option) (*Orchestrator, error) {
	if evaluator == nil {
		return nil, errors.New("evaluator cannot be nil")
	}
	if ledger == nil {
		return nil, errors.New("ledger cannot be nil")
	}

	o := &Orchestrator{
		evaluator:   evaluator,
		ledger:      ledger,
		concurrency: defaultConcurrency,
		taskTimeout: defaultTaskTimeout,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return o, nil
}

// Run evaluates every criterion in the rubric against the repository digest
// and assembles the final Evaluation once all tasks have settled.
//
// Cancelling ctx stops new tasks from launching and interrupts in-flight
// ones; whatever settled before the signal is returned as a partial
// Evaluation with the remainder marked not-evaluated, without a run-level
// error. The only run-level errors are an empty rubric and zero successful
// criteria on an uncancelled run.
func (o *Orchestrator) Run(ctx context.Context, r *rubric.Rubric, repository, digest string) (*Evaluation, error) {
	if r == nil || len(r.Criteria) == 0 {
		return nil, ErrNoCriteria
	}

	log := clog.FromContext(ctx)
	total := len(r.Criteria)
	log.With("criteria", total).
		With("concurrency", o.concurrency).
		Info("Starting rubric evaluation")

	// Results are slotted by rubric position so the aggregate's ordering is
	// independent of completion order. Slots left untouched by a cancelled
	// run keep their not-evaluated placeholder.
	results := make([]CriterionResult, total)
	for i, c := range r.Criteria {
		results[i] = CriterionResult{
			Criterion: c.Name,
			Kind:      c.Kind,
			MaxScore:  c.MaxScore(),
			Status:    StatusNotEvaluated,
		}
	}

	var (
		mu      sync.Mutex
		settled int
	)
	emit := func(ev ProgressEvent) {
		if o.progress != nil {
			o.progress(ev)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)

	for i, c := range r.Criteria {
		// Stop launching once cancellation is requested. g.Go blocks while
		// all slots are busy, so this check also gates queued criteria.
		if ctx.Err() != nil {
			log.With("remaining", total-i).Info("Cancellation requested, not launching further evaluations")
			break
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			mu.Lock()
			emit(ProgressEvent{Criterion: c.Name, Status: EventStarted, Completed: settled, Total: total})
			mu.Unlock()

			tctx, cancel := context.WithTimeout(ctx, o.taskTimeout)
			defer cancel()

			res, rec, err := o.evaluator.Evaluate(tctx, c, digest)

			// Tokens consumed before a failure still count.
			if rec != nil {
				o.ledger.Record(ctx, *rec)
			}

			if err == nil && res == nil {
				err = errors.New("evaluator returned no result")
			}

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				res.Status = StatusCompleted
				results[i] = *res
				settled++
				emit(ProgressEvent{Criterion: c.Name, Status: EventSucceeded, Completed: settled, Total: total})

			case ctx.Err() != nil && errors.Is(err, context.Canceled):
				// Interrupted by run cancellation, not a real failure. The
				// placeholder stays not-evaluated.
				log.With("criterion", c.Name).Info("Evaluation interrupted by cancellation")

			default:
				log.With("criterion", c.Name).With("error", err).Warn("Criterion evaluation failed")
				results[i] = CriterionResult{
					Criterion: c.Name,
					Kind:      c.Kind,
					MaxScore:  c.MaxScore(),
					Reasoning: fmt.Sprintf("evaluation failed: %v", err),
					Status:    StatusFailed,
				}
				settled++
				emit(ProgressEvent{Criterion: c.Name, Status: EventFailed, Completed: settled, Total: total})
			}
			return nil
		})
	}

	// Join barrier: the aggregate is only assembled once every launched task
	// has settled.
	_ = g.Wait()

	successes := 0
	failed := make([]string, 0, total)
	totalScore := 0
	for _, res := range results {
		totalScore += res.Score
		switch res.Status {
		case StatusCompleted:
			successes++
		case StatusFailed:
			failed = append(failed, res.Criterion)
		}
	}

	if successes == 0 && ctx.Err() == nil {
		return nil, fmt.Errorf("%w (%d criteria)", ErrAllFailed, total)
	}

	ev := &Evaluation{
		Repository:    repository,
		EvaluatedAt:   time.Now().UTC(),
		Results:       results,
		TotalScore:    totalScore,
		MaxTotalScore: r.MaxTotalScore(),
		Failed:        failed,
	}

	log.With("score", ev.TotalScore).
		With("max_score", ev.MaxTotalScore).
		With("failed", len(failed)).
		Info("Rubric evaluation finished")
	return ev, nil
}
