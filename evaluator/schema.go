/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evaluator

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// reflector is configured so the emitted schema is self-contained and
// suitable for embedding directly in a prompt.
var reflector = jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	DoNotReference:             true,
}

// schemaJSON reflects T into an indented JSON schema document.
func schemaJSON[T any]() (string, error) {
	var zero T
	s := reflector.Reflect(&zero)
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling schema: %w", err)
	}
	return string(data), nil
}

// mustSchemaJSON panics when reflection fails; the response shapes are
// package-level types, so a failure here is a programming error.
func mustSchemaJSON[T any]() string {
	s, err := schemaJSON[T]()
	if err != nil {
		panic(err)
	}
	return s
}
