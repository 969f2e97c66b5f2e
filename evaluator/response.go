/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evaluator

import (
	"encoding/json"
	"fmt"
	"strings"

	"chainguard.dev/reposcore/evaluate"
	"chainguard.dev/reposcore/rubric"
)

// ScoredResponse is the shape a backend must return for a scored criterion.
type ScoredResponse struct {
	Score     int      `json:"score" jsonschema:"required,description=One of the defined level scores"`
	Reasoning string   `json:"reasoning" jsonschema:"required,description=Explanation of the assessment"`
	Evidence  []string `json:"evidence" jsonschema:"description=Specific files or snippets supporting the score"`
}

// ChecklistResponse is the shape a backend must return for a checklist
// criterion. CompletedItems holds 0-based indices into the defined items.
type ChecklistResponse struct {
	CompletedItems []int    `json:"completed_items" jsonschema:"required,description=0-based indices of completed checklist items"`
	Reasoning      string   `json:"reasoning" jsonschema:"required,description=Explanation of each decision"`
	Evidence       []string `json:"evidence" jsonschema:"description=Specific files or snippets supporting the decisions"`
}

// ExtractJSON pulls JSON content out of a model response that may wrap it in
// a markdown code fence. Without a fence the trimmed response is returned
// as-is.
func ExtractJSON(response string) string {
	if start := strings.Index(response, "```json"); start != -1 {
		rest := response[start+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}

	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// ParseResult parses a backend's text response for the given criterion and
// validates it against the criterion's definition. Any violation -- a score
// that matches no defined level, a checklist index outside the defined
// items, duplicates -- is an error, so an out-of-range result can never be
// silently accepted as a valid score.
func ParseResult(c rubric.Criterion, response string) (*evaluate.CriterionResult, error) {
	text := ExtractJSON(response)

	switch c.Kind {
	case rubric.KindScored:
		var sr ScoredResponse
		if err := json.Unmarshal([]byte(text), &sr); err != nil {
			return nil, fmt.Errorf("parsing scored response: %w", err)
		}
		if !definedLevel(c, sr.Score) {
			return nil, fmt.Errorf("score %d matches no defined level for criterion %q", sr.Score, c.Name)
		}
		return &evaluate.CriterionResult{
			Criterion: c.Name,
			Kind:      c.Kind,
			Score:     sr.Score,
			MaxScore:  c.MaxScore(),
			Reasoning: sr.Reasoning,
			Evidence:  sr.Evidence,
			Status:    evaluate.StatusCompleted,
		}, nil

	case rubric.KindChecklist:
		var cr ChecklistResponse
		if err := json.Unmarshal([]byte(text), &cr); err != nil {
			return nil, fmt.Errorf("parsing checklist response: %w", err)
		}
		score := 0
		seen := make(map[int]bool, len(cr.CompletedItems))
		for _, idx := range cr.CompletedItems {
			if idx < 0 || idx >= len(c.Items) {
				return nil, fmt.Errorf("checklist item index %d is not defined for criterion %q", idx, c.Name)
			}
			if seen[idx] {
				return nil, fmt.Errorf("checklist item index %d selected twice for criterion %q", idx, c.Name)
			}
			seen[idx] = true
			score += c.Items[idx].Points
		}
		return &evaluate.CriterionResult{
			Criterion: c.Name,
			Kind:      c.Kind,
			Score:     score,
			MaxScore:  c.MaxScore(),
			Reasoning: cr.Reasoning,
			Evidence:  cr.Evidence,
			Status:    evaluate.StatusCompleted,
		}, nil

	default:
		return nil, fmt.Errorf("unknown criterion kind %q", c.Kind)
	}
}

func definedLevel(c rubric.Criterion, score int) bool {
	for _, l := range c.ScoreLevels {
		if l.Score == score {
			return true
		}
	}
	return false
}
