/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evaluate

import "time"

// Evaluation is the immutable outcome of a full run: one CriterionResult per
// rubric criterion, in rubric declaration order regardless of completion
// order. It is assembled exactly once, after every task has settled.
type Evaluation struct {
	Repository    string            `json:"repository"`
	EvaluatedAt   time.Time         `json:"evaluated_at"`
	Results       []CriterionResult `json:"results"`
	TotalScore    int               `json:"total_score"`
	MaxTotalScore int               `json:"max_total_score"`

	// Failed lists the names of criteria whose status is failed, in rubric
	// order.
	Failed []string `json:"failed,omitempty"`
}

// Percentage returns TotalScore over MaxTotalScore. Rubric validation
// guarantees a positive maximum, so division by zero cannot occur for any
// Evaluation produced by the orchestrator.
func (e *Evaluation) Percentage() float64 {
	return float64(e.TotalScore) / float64(e.MaxTotalScore)
}

// Complete reports whether every criterion settled (completed or failed),
// i.e. the run was not cancelled part way through.
func (e *Evaluation) Complete() bool {
	for _, r := range e.Results {
		if r.Status == StatusNotEvaluated {
			return false
		}
	}
	return true
}
