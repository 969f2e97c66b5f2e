/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evaluate

import (
	"context"

	"chainguard.dev/reposcore/rubric"
	"chainguard.dev/reposcore/usage"
)

// Status is the terminal state of one criterion's evaluation.
type Status string

const (
	// StatusCompleted means the backend produced a valid result.
	StatusCompleted Status = "completed"
	// StatusFailed means the backend call failed or returned an invalid
	// result; the criterion scores 0 with the failure reason as rationale.
	StatusFailed Status = "failed"
	// StatusNotEvaluated means the run was cancelled before this criterion
	// was evaluated. Distinct from StatusFailed: nothing went wrong.
	StatusNotEvaluated Status = "not_evaluated"
)

// CriterionResult is the outcome of evaluating one criterion. Results are
// handed to the aggregate by value and never mutated afterwards.
type CriterionResult struct {
	Criterion string      `json:"criterion"`
	Kind      rubric.Kind `json:"kind"`
	Score     int         `json:"score"`
	MaxScore  int         `json:"max_score"`
	Reasoning string      `json:"reasoning"`
	Evidence  []string    `json:"evidence,omitempty"`
	Status    Status      `json:"status"`
}

// Evaluator is the collaborator boundary the orchestrator drives: one call
// per criterion, performing network I/O against a reasoning backend.
//
// Implementations may fail at any point, including after consuming tokens;
// a non-nil usage record returned alongside an error is still recorded.
type Evaluator interface {
	Evaluate(ctx context.Context, criterion rubric.Criterion, digest string) (*CriterionResult, *usage.Record, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, criterion rubric.Criterion, digest string) (*CriterionResult, *usage.Record, error)

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(ctx context.Context, criterion rubric.Criterion, digest string) (*CriterionResult, *usage.Record, error) {
	return f(ctx, criterion, digest)
}
