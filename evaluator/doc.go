/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package evaluator holds the pieces shared by the reasoning backends:
// prompt construction from a criterion and repository digest, JSON
// extraction from model output, and validation of the response against the
// criterion's defined levels or items. Out-of-range scores and unrecognized
// checklist items are rejected, never silently accepted.
package evaluator
