/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chainguard.dev/reposcore/rubric"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the rubric file",
		Long:  "Load the rubric file and report its criteria and maximum score, or the validation error.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rubric.LoadFile(rubricFile)
			if err != nil {
				return fmt.Errorf("invalid rubric %s: %w", rubricFile, err)
			}

			fmt.Fprintf(os.Stdout, "%s: %d criteria, max score %d\n", rubricFile, len(r.Criteria), r.MaxTotalScore())
			for _, c := range r.Criteria {
				fmt.Fprintf(os.Stdout, "  %-30s %-10s max %d\n", c.Name, c.Kind, c.MaxScore())
			}
			return nil
		},
	}
}
