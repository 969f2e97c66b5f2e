/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package openaievaluator implements the criterion-evaluator boundary on the
// OpenAI chat completions API.
package openaievaluator

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"

	"chainguard.dev/reposcore/evaluate"
	"chainguard.dev/reposcore/evaluator"
	"chainguard.dev/reposcore/evaluator/retry"
	"chainguard.dev/reposcore/rubric"
	"chainguard.dev/reposcore/usage"
)

// Evaluator evaluates criteria by prompting an OpenAI model with the
// repository digest and parsing its structured response.
type Evaluator struct {
	client      openai.Client
	modelName   string
	maxTokens   int64
	temperature float64
	retryConfig retry.Config
}

// New creates an Evaluator backed by the given OpenAI client.
func New(client openai.Client, opts ...Option) (*Evaluator, error) {
	e := &Evaluator{
		client:      client,
		modelName:   "gpt-4o-mini",
		maxTokens:   8192,
		temperature: 0.1,
		retryConfig: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return e, nil
}

// Evaluate implements evaluate.Evaluator. The usage record is returned even
// when response parsing fails, so tokens consumed by an unusable response
// are still accounted for.
func (e *Evaluator) Evaluate(ctx context.Context, criterion rubric.Criterion, digest string) (*evaluate.CriterionResult, *usage.Record, error) {
	log := clog.FromContext(ctx)

	prompt, err := evaluator.BuildPrompt(criterion, digest)
	if err != nil {
		return nil, nil, fmt.Errorf("building prompt: %w", err)
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.modelName),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(evaluator.SystemInstructions),
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(e.maxTokens),
		Temperature:         openai.Float(e.temperature),
	}

	log.With("criterion", criterion.Name).
		With("model", e.modelName).
		With("prompt_length", len(prompt)).
		Info("Starting OpenAI criterion evaluation")

	completion, err := retry.Do(ctx, e.retryConfig, "chat_completion", isRetryableOpenAIError, func() (*openai.ChatCompletion, error) {
		return e.client.Chat.Completions.New(ctx, params)
	})

	var rec *usage.Record
	if completion != nil && (completion.Usage.PromptTokens > 0 || completion.Usage.CompletionTokens > 0) {
		rec = &usage.Record{
			Model:        e.modelName,
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		}
	}
	if err != nil {
		return nil, rec, fmt.Errorf("requesting chat completion: %w", err)
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return nil, rec, errors.New("no content in OpenAI response")
	}

	res, err := evaluator.ParseResult(criterion, completion.Choices[0].Message.Content)
	if err != nil {
		log.With("criterion", criterion.Name).
			With("error", err).
			Error("Failed to parse OpenAI response")
		return nil, rec, err
	}

	log.With("criterion", criterion.Name).
		With("score", res.Score).
		With("max_score", res.MaxScore).
		Info("Completed OpenAI criterion evaluation")
	return res, rec, nil
}
