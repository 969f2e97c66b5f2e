/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rubric

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrMalformed is wrapped by every validation failure reported by Load so
// callers can distinguish a bad rubric from I/O errors with errors.Is.
var ErrMalformed = errors.New("malformed rubric")

// Kind distinguishes the two criterion flavors.
type Kind string

const (
	// KindScored awards exactly one of an ordered set of score levels.
	KindScored Kind = "scored"
	// KindChecklist awards the point sum of independently completed items.
	KindChecklist Kind = "checklist"
)

// ScoreLevel is one rung of a scored criterion.
type ScoreLevel struct {
	Score       int    `yaml:"score"`
	Description string `yaml:"description"`
}

// ChecklistItem is one awardable line item of a checklist criterion.
type ChecklistItem struct {
	Description string `yaml:"description"`
	Points      int    `yaml:"points"`
}

// Criterion is a single evaluable aspect of a repository. Exactly one of
// ScoreLevels or Items is populated, according to Kind.
type Criterion struct {
	Name string `yaml:"name"`
	Kind Kind   `yaml:"type"`

	// Comment carries optional extra guidance appended to the evaluator
	// prompt. It does not affect scoring.
	Comment string `yaml:"comment,omitempty"`

	ScoreLevels []ScoreLevel    `yaml:"score_levels,omitempty"`
	Items       []ChecklistItem `yaml:"items,omitempty"`
}

// MaxScore returns the maximum attainable score for this criterion: the top
// level's score for scored criteria, the point sum for checklists.
func (c Criterion) MaxScore() int {
	switch c.Kind {
	case KindScored:
		max := 0
		for _, l := range c.ScoreLevels {
			if l.Score > max {
				max = l.Score
			}
		}
		return max
	case KindChecklist:
		sum := 0
		for _, it := range c.Items {
			sum += it.Points
		}
		return sum
	default:
		return 0
	}
}

// Rubric is an ordered set of criteria.
type Rubric struct {
	Criteria []Criterion `yaml:"criteria"`
}

// MaxTotalScore returns the sum of every criterion's maximum score.
func (r *Rubric) MaxTotalScore() int {
	total := 0
	for _, c := range r.Criteria {
		total += c.MaxScore()
	}
	return total
}

// Load parses and validates a rubric definition.
func Load(src io.Reader) (*Rubric, error) {
	var r Rubric
	if err := yaml.NewDecoder(src).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decoding yaml: %v", ErrMalformed, err)
	}

	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadFile reads and validates a rubric definition from a file.
func LoadFile(path string) (*Rubric, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rubric: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func (r *Rubric) validate() error {
	if len(r.Criteria) == 0 {
		return fmt.Errorf("%w: rubric has no criteria", ErrMalformed)
	}

	seen := make(map[string]bool, len(r.Criteria))
	for i, c := range r.Criteria {
		if c.Name == "" {
			return fmt.Errorf("%w: criterion %d is missing a name", ErrMalformed, i)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate criterion name %q", ErrMalformed, c.Name)
		}
		seen[c.Name] = true

		switch c.Kind {
		case KindScored:
			if err := validateScored(c); err != nil {
				return err
			}
		case KindChecklist:
			if err := validateChecklist(c); err != nil {
				return err
			}
		case "":
			return fmt.Errorf("%w: criterion %q is missing a type", ErrMalformed, c.Name)
		default:
			return fmt.Errorf("%w: criterion %q has unknown type %q", ErrMalformed, c.Name, c.Kind)
		}
	}

	// MaxTotalScore > 0 follows from the per-criterion checks, but a rubric
	// consisting entirely of zero-weight criteria would still divide by zero
	// downstream, so reject it outright.
	if r.MaxTotalScore() <= 0 {
		return fmt.Errorf("%w: maximum total score must be positive", ErrMalformed)
	}

	return nil
}

func validateScored(c Criterion) error {
	if len(c.Items) > 0 {
		return fmt.Errorf("%w: scored criterion %q must not define items", ErrMalformed, c.Name)
	}
	if len(c.ScoreLevels) == 0 {
		return fmt.Errorf("%w: scored criterion %q has no score levels", ErrMalformed, c.Name)
	}
	if c.ScoreLevels[0].Score != 0 {
		return fmt.Errorf("%w: scored criterion %q must start at score 0, got %d", ErrMalformed, c.Name, c.ScoreLevels[0].Score)
	}
	for i := 1; i < len(c.ScoreLevels); i++ {
		if c.ScoreLevels[i].Score <= c.ScoreLevels[i-1].Score {
			return fmt.Errorf("%w: scored criterion %q has non-increasing score levels (%d then %d)",
				ErrMalformed, c.Name, c.ScoreLevels[i-1].Score, c.ScoreLevels[i].Score)
		}
	}
	return nil
}

func validateChecklist(c Criterion) error {
	if len(c.ScoreLevels) > 0 {
		return fmt.Errorf("%w: checklist criterion %q must not define score levels", ErrMalformed, c.Name)
	}
	if len(c.Items) == 0 {
		return fmt.Errorf("%w: checklist criterion %q has no items", ErrMalformed, c.Name)
	}
	for i, it := range c.Items {
		if it.Points <= 0 {
			return fmt.Errorf("%w: checklist criterion %q item %d has non-positive points %d",
				ErrMalformed, c.Name, i, it.Points)
		}
	}
	return nil
}
