/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package openaievaluator

import (
	"errors"

	"github.com/openai/openai-go"
)

// isRetryableOpenAIError reports whether an error is a transient OpenAI API
// error: rate limit or server-side errors.
func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}
