/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package report renders a finished evaluation, and the token spend behind
// it, as markdown-style text suitable for the console or a file.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"chainguard.dev/reposcore/evaluate"
	"chainguard.dev/reposcore/usage"
)

// Render writes the full report to w: header, per-criterion score table,
// detailed reasoning and evidence, improvement hints, and the per-model cost
// summary. The output is valid markdown, so the same renderer serves the
// console and the saved report file.
func Render(w io.Writer, ev *evaluate.Evaluation, ledger *usage.Ledger) error {
	fmt.Fprintf(w, "# Repository Evaluation Report\n\n")
	fmt.Fprintf(w, "**Repository:** %s  \n", ev.Repository)
	fmt.Fprintf(w, "**Evaluated:** %s  \n", ev.EvaluatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "**Total Score:** %d/%d (%.1f%%)\n\n", ev.TotalScore, ev.MaxTotalScore, ev.Percentage()*100)
	if !ev.Complete() {
		fmt.Fprintf(w, "**Note:** the run was interrupted; criteria marked not evaluated were never attempted.\n\n")
	}

	fmt.Fprintf(w, "## Summary\n\n")
	writeScoreTable(w, ev.Results)

	fmt.Fprintf(w, "\n## Detailed Results\n\n")
	for _, r := range ev.Results {
		writeDetail(w, r)
	}

	if hints := Improvements(ev.Results); len(hints) > 0 {
		fmt.Fprintf(w, "## Suggested Improvements\n\n")
		for i, hint := range hints {
			fmt.Fprintf(w, "%d. %s\n", i+1, hint)
		}
		fmt.Fprintln(w)
	}

	if ledger != nil {
		fmt.Fprintf(w, "## Cost Summary\n\n")
		writeCostTable(w, ledger)
	}
	return nil
}

func writeScoreTable(w io.Writer, results []evaluate.CriterionResult) {
	table := newScoreTable([]string{"Criterion", "Type", "Score", "Max", "Status"}, w)
	for _, r := range results {
		_ = table.Append([]string{
			r.Criterion,
			string(r.Kind),
			fmt.Sprintf("%d", r.Score),
			fmt.Sprintf("%d", r.MaxScore),
			string(r.Status),
		})
	}
	_ = table.Render()
}

func writeDetail(w io.Writer, r evaluate.CriterionResult) {
	fmt.Fprintf(w, "### %s\n\n", r.Criterion)
	fmt.Fprintf(w, "**Score:** %d/%d (%s)\n\n", r.Score, r.MaxScore, r.Status)
	if r.Status == evaluate.StatusNotEvaluated {
		fmt.Fprintf(w, "Not evaluated.\n\n")
		return
	}

	fmt.Fprintf(w, "**Reasoning:**\n%s\n\n", strings.TrimSpace(r.Reasoning))
	fmt.Fprintf(w, "**Evidence:**\n")
	if len(r.Evidence) == 0 {
		fmt.Fprintf(w, "- No specific evidence provided\n")
	}
	for _, e := range r.Evidence {
		fmt.Fprintf(w, "- %s\n", e)
	}
	fmt.Fprintln(w)
}

func writeCostTable(w io.Writer, ledger *usage.Ledger) {
	table := newScoreTable([]string{"Model", "Input tokens", "Output tokens", "Cost"}, w)
	breakdown := ledger.Breakdown()
	for _, model := range ledger.Models() {
		mu := breakdown[model]
		cost := fmt.Sprintf("$%.4f", mu.Cost())
		if mu.Estimated {
			cost += " (estimated)"
		}
		_ = table.Append([]string{
			model,
			fmt.Sprintf("%d", mu.InputTokens),
			fmt.Sprintf("%d", mu.OutputTokens),
			cost,
		})
	}
	in, out := ledger.TotalTokens()
	_ = table.Append([]string{"Total", fmt.Sprintf("%d", in), fmt.Sprintf("%d", out), fmt.Sprintf("$%.4f", ledger.TotalCost())})
	_ = table.Render()
}

// Improvements lists the settled criteria that scored below their maximum,
// ordered by points lost with ties broken by rubric order. Failed criteria
// name the failure; scored and checklist shortfalls quote the model's
// reasoning.
func Improvements(results []evaluate.CriterionResult) []string {
	type shortfall struct {
		index int
		lost  int
		text  string
	}

	var shortfalls []shortfall
	for i, r := range results {
		if r.Status == evaluate.StatusNotEvaluated || r.Score >= r.MaxScore {
			continue
		}
		lost := r.MaxScore - r.Score
		var text string
		switch r.Status {
		case evaluate.StatusFailed:
			text = fmt.Sprintf("%s could not be evaluated (%d points unscored): %s",
				r.Criterion, lost, firstSentence(r.Reasoning))
		default:
			text = fmt.Sprintf("%s scored %d/%d (%d points available): %s",
				r.Criterion, r.Score, r.MaxScore, lost, firstSentence(r.Reasoning))
		}
		shortfalls = append(shortfalls, shortfall{index: i, lost: lost, text: text})
	}

	sort.SliceStable(shortfalls, func(i, j int) bool {
		return shortfalls[i].lost > shortfalls[j].lost
	})

	hints := make([]string, 0, len(shortfalls))
	for _, s := range shortfalls {
		hints = append(hints, s.text)
	}
	return hints
}

// firstSentence trims a reasoning blob down to a one-line hint.
func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".\n"); i >= 0 {
		s = s[:i+1]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "\n")
}

var slugPattern = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Save renders the report into dir as <repository-slug>-report.md and returns
// the path written.
func Save(dir string, ev *evaluate.Evaluation, ledger *usage.Ledger) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	var sb strings.Builder
	if err := Render(&sb, ev, ledger); err != nil {
		return "", err
	}

	path := filepath.Join(dir, repoSlug(ev.Repository)+"-report.md")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

// repoSlug derives a filesystem-safe name from a repository URL or path.
func repoSlug(repository string) string {
	s := strings.TrimRight(repository, "/")
	s = strings.TrimSuffix(s, ".git")
	if i := strings.LastIndexAny(s, "/:"); i >= 0 {
		s = s[i+1:]
	}
	s = slugPattern.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "repository"
	}
	return s
}
