/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package usage

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelPrice holds the dollar price per 1K input and output tokens.
type ModelPrice struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// PricingTable maps model identifiers to per-1K token prices, with a default
// applied when no entry matches. The table is loaded once at run start and
// read-only thereafter.
type PricingTable struct {
	Models  map[string]ModelPrice `yaml:"models"`
	Default ModelPrice            `yaml:"default"`
}

// DefaultPricing is used when no pricing file is supplied. Every cost
// computed from it is flagged estimated.
func DefaultPricing() PricingTable {
	return PricingTable{
		Default: ModelPrice{Input: 0.001, Output: 0.003},
	}
}

// LoadPricing parses a pricing table from YAML.
func LoadPricing(src io.Reader) (PricingTable, error) {
	var t PricingTable
	if err := yaml.NewDecoder(src).Decode(&t); err != nil {
		return t, fmt.Errorf("decoding pricing table: %w", err)
	}
	if t.Default == (ModelPrice{}) {
		t.Default = DefaultPricing().Default
	}
	return t, nil
}

// LoadPricingFile reads a pricing table from a file.
func LoadPricingFile(path string) (PricingTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return PricingTable{}, fmt.Errorf("opening pricing table: %w", err)
	}
	defer f.Close()
	return LoadPricing(f)
}

// PriceFor resolves the price for a model identifier. The estimated flag is
// true when the lookup fell through to the default rate, so callers never
// mistake a fallback figure for a known one.
//
// Resolution order: exact match, provider-prefixed form ("anthropic:model"),
// longest substring match, default.
func (t PricingTable) PriceFor(model string) (price ModelPrice, estimated bool) {
	if p, ok := t.Models[model]; ok {
		return p, false
	}

	if _, name, found := strings.Cut(model, ":"); found {
		if p, ok := t.Models[name]; ok {
			return p, false
		}
	}

	// Longer names first so e.g. "gpt-4o-mini" wins over "gpt-4".
	keys := make([]string, 0, len(t.Models))
	for k := range t.Models {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		if strings.Contains(model, k) {
			return t.Models[k], false
		}
	}

	return t.Default, true
}
