/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"github.com/spf13/cobra"
)

var (
	rubricFile  string
	pricingFile string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reposcore",
		Short:         "Evaluate repositories against declarative rubrics with LLM judges",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&rubricFile, "rubric", "rubric.yaml", "rubric file path")
	root.PersistentFlags().StringVar(&pricingFile, "pricing", "", "pricing table path (built-in defaults when empty)")
	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	return root
}
