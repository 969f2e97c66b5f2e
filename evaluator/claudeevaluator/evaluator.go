/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claudeevaluator implements the criterion-evaluator boundary on the
// Anthropic Messages API.
package claudeevaluator

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"

	"chainguard.dev/reposcore/evaluate"
	"chainguard.dev/reposcore/evaluator"
	"chainguard.dev/reposcore/evaluator/retry"
	"chainguard.dev/reposcore/rubric"
	"chainguard.dev/reposcore/usage"
)

// Evaluator evaluates criteria by prompting a Claude model with the
// repository digest and parsing its structured response.
type Evaluator struct {
	client      anthropic.Client
	modelName   string
	maxTokens   int64
	temperature float64
	retryConfig retry.Config
}

// New creates an Evaluator backed by the given Anthropic client.
func New(client anthropic.Client, opts ...Option) (*Evaluator, error) {
	e := &Evaluator{
		client:      client,
		modelName:   "claude-sonnet-4-20250514",
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

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.modelName),
		MaxTokens: e.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: evaluator.SystemInstructions}},
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(prompt),
			},
		}},
	}
	params.Temperature = anthropic.Float(e.temperature)

	log.With("criterion", criterion.Name).
		With("model", e.modelName).
		With("prompt_length", len(prompt)).
		Info("Starting Claude criterion evaluation")

	// Stream and accumulate, retrying transient API errors.
	message, err := retry.Do(ctx, e.retryConfig, "stream_message", isRetryableClaudeError, func() (anthropic.Message, error) {
		stream := e.client.Messages.NewStreaming(ctx, params)
		var msg anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				return msg, fmt.Errorf("failed to accumulate event: %w", err)
			}
		}
		if err := stream.Err(); err != nil {
			return msg, err
		}
		return msg, nil
	})

	var rec *usage.Record
	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		rec = &usage.Record{
			Model:        e.modelName,
			InputTokens:  message.Usage.InputTokens,
			OutputTokens: message.Usage.OutputTokens,
		}
	}
	if err != nil {
		return nil, rec, fmt.Errorf("streaming Claude response: %w", err)
	}

	var textContent string
	for _, content := range message.Content {
		if content.Type == "text" {
			textContent = content.Text
		}
	}
	if textContent == "" {
		return nil, rec, errors.New("no text content in Claude response")
	}

	res, err := evaluator.ParseResult(criterion, textContent)
	if err != nil {
		log.With("criterion", criterion.Name).
			With("error", err).
			Error("Failed to parse Claude response")
		return nil, rec, err
	}

	log.With("criterion", criterion.Name).
		With("score", res.Score).
		With("max_score", res.MaxScore).
		Info("Completed Claude criterion evaluation")
	return res, rec, nil
}
