/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evaluator

import (
	"fmt"
	"strings"

	"chainguard.dev/reposcore/rubric"
)

// SystemInstructions is the shared system prompt for every criterion
// evaluation, regardless of backend.
const SystemInstructions = `You are an expert software engineer evaluating a repository against a specific quality criterion.

You are given the repository's contents as a digest and one criterion. Assess the repository strictly against that criterion:
1. Study the relevant parts of the digest.
2. Gather concrete evidence: cite specific files, code snippets, or observations.
3. Make your assessment based only on what the digest shows.

Be evidence-based. Do not award credit for things the digest does not demonstrate, and do not penalize for aspects outside the criterion.`

var (
	scoredSchema    = mustSchemaJSON[ScoredResponse]()
	checklistSchema = mustSchemaJSON[ChecklistResponse]()
)

// BuildPrompt renders the user prompt for one criterion against a repository
// digest, including the JSON schema the response must match.
func BuildPrompt(c rubric.Criterion, digest string) (string, error) {
	var task, schema string

	switch c.Kind {
	case rubric.KindScored:
		var levels strings.Builder
		for _, l := range c.ScoreLevels {
			fmt.Fprintf(&levels, "  %d points: %s\n", l.Score, l.Description)
		}
		task = fmt.Sprintf(`Evaluate this repository against: **%s**

### Scoring levels:
%s
Assign exactly one of the defined level scores (0 to %d) based on the levels above. Provide your score with detailed reasoning and evidence.`,
			c.Name, levels.String(), c.MaxScore())
		schema = scoredSchema

	case rubric.KindChecklist:
		var items strings.Builder
		for i, it := range c.Items {
			fmt.Fprintf(&items, "  Item %d: %s (%d points)\n", i, it.Description, it.Points)
		}
		task = fmt.Sprintf(`Evaluate this repository against: **%s**

### Checklist items:
%s
Check each item systematically and return the 0-based indices of completed items. For example, if items 0, 2, and 3 are completed, return [0, 2, 3]. Provide reasoning for each decision.`,
			c.Name, items.String())
		schema = checklistSchema

	default:
		return "", fmt.Errorf("unknown criterion kind %q", c.Kind)
	}

	if c.Comment != "" {
		task += fmt.Sprintf("\n\nIMPORTANT: %s", c.Comment)
	}

	return fmt.Sprintf(`<repository>
%s
</repository>

<task>
%s
</task>

<output_format>
Return your assessment as a JSON object matching this schema:
%s
</output_format>

Respond with only the JSON object, no additional text.`, digest, task, schema), nil
}
