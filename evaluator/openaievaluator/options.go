/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package openaievaluator

import (
	"errors"
	"fmt"

	"chainguard.dev/reposcore/evaluator/retry"
)

// Option is a functional option for configuring the evaluator.
type Option func(*Evaluator) error

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(e *Evaluator) error {
		if model == "" {
			return errors.New("model name cannot be empty")
		}
		e.modelName = model
		return nil
	}
}

// WithMaxTokens sets the maximum completion tokens for responses.
func WithMaxTokens(tokens int64) Option {
	return func(e *Evaluator) error {
		if tokens <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", tokens)
		}
		e.maxTokens = tokens
		return nil
	}
}

// WithTemperature sets the sampling temperature (0.0 to 2.0 for OpenAI
// models); lower values produce more deterministic output.
func WithTemperature(temp float64) Option {
	return func(e *Evaluator) error {
		if temp < 0.0 || temp > 2.0 {
			return fmt.Errorf("temperature must be between 0.0 and 2.0, got %f", temp)
		}
		e.temperature = temp
		return nil
	}
}

// WithRetryConfig overrides the retry behavior for transient API errors.
func WithRetryConfig(cfg retry.Config) Option {
	return func(e *Evaluator) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid retry config: %w", err)
		}
		e.retryConfig = cfg
		return nil
	}
}
