/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"chainguard.dev/reposcore/evaluate"
	"chainguard.dev/reposcore/evaluator/claudeevaluator"
	"chainguard.dev/reposcore/evaluator/openaievaluator"
	"chainguard.dev/reposcore/repodigest"
	"chainguard.dev/reposcore/report"
	"chainguard.dev/reposcore/rubric"
	"chainguard.dev/reposcore/usage"
)

type runConfig struct {
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	GitHubToken     string `env:"GITHUB_TOKEN"`
}

var (
	flagProvider    string
	flagModel       string
	flagConcurrency int
	flagTimeout     time.Duration
	flagOutput      string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [repository]",
		Short: "Evaluate a repository against the rubric",
		Long: "Evaluate a repository (GitHub URL or local path) against the rubric, " +
			"printing a scored report and the token cost of the run.",
		Args: cobra.ExactArgs(1),
		RunE: runEvaluation,
	}
	cmd.Flags().StringVar(&flagProvider, "provider", "claude", "evaluation backend: claude or openai")
	cmd.Flags().StringVar(&flagModel, "model", "", "override the backend's default model")
	cmd.Flags().IntVar(&flagConcurrency, "concurrency", 3, "max criteria evaluated concurrently")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 5*time.Minute, "per-criterion evaluation timeout")
	cmd.Flags().StringVar(&flagOutput, "output", "", "directory to write a markdown report into")
	return cmd
}

func runEvaluation(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	repoArg := args[0]

	var cfg runConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return fmt.Errorf("processing config: %w", err)
	}

	r, err := rubric.LoadFile(rubricFile)
	if err != nil {
		return fmt.Errorf("loading rubric: %w", err)
	}

	pricing := usage.DefaultPricing()
	if pricingFile != "" {
		if pricing, err = usage.LoadPricingFile(pricingFile); err != nil {
			return fmt.Errorf("loading pricing table: %w", err)
		}
	}

	metrics := usage.NewMetrics("chainguard.dev/reposcore")
	ledger := usage.NewLedger(pricing, usage.WithMetrics(metrics))

	ev, err := newEvaluator(cfg)
	if err != nil {
		return err
	}

	mgr := repodigest.NewManager(repodigest.WithToken(cfg.GitHubToken))
	defer mgr.Cleanup(ctx)

	root, err := mgr.Acquire(ctx, repoArg)
	if err != nil {
		return fmt.Errorf("acquiring repository: %w", err)
	}

	digest, err := repodigest.NewBuilder().Build(ctx, root)
	if err != nil {
		return fmt.Errorf("building digest: %w", err)
	}

	orch, err := evaluate.New(ev, ledger,
		evaluate.WithConcurrency(flagConcurrency),
		evaluate.WithTaskTimeout(flagTimeout),
		evaluate.WithProgress(printProgress),
	)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	evaluation, err := orch.Run(ctx, r, repoArg, digest)
	if err != nil {
		return fmt.Errorf("evaluating repository: %w", err)
	}

	fmt.Fprintln(os.Stdout)
	if err := report.Render(os.Stdout, evaluation, ledger); err != nil {
		return err
	}

	if flagOutput != "" {
		path, err := report.Save(flagOutput, evaluation, ledger)
		if err != nil {
			return err
		}
		clog.InfoContextf(ctx, "Report saved to %s", path)
	}

	clog.InfoContextf(ctx, "%s", ledger.Summary())
	return nil
}

// newEvaluator builds the backend selected by --provider, applying the
// --model override when set.
func newEvaluator(cfg runConfig) (evaluate.Evaluator, error) {
	switch flagProvider {
	case "claude":
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY must be set for the claude provider")
		}
		client := anthropic.NewClient(anthropicoption.WithAPIKey(cfg.AnthropicAPIKey))
		var opts []claudeevaluator.Option
		if flagModel != "" {
			opts = append(opts, claudeevaluator.WithModel(flagModel))
		}
		return claudeevaluator.New(client, opts...)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY must be set for the openai provider")
		}
		client := openai.NewClient(openaioption.WithAPIKey(cfg.OpenAIAPIKey))
		var opts []openaievaluator.Option
		if flagModel != "" {
			opts = append(opts, openaievaluator.WithModel(flagModel))
		}
		return openaievaluator.New(client, opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q (want claude or openai)", flagProvider)
	}
}

func printProgress(ev evaluate.ProgressEvent) {
	switch ev.Status {
	case evaluate.EventStarted:
		fmt.Fprintf(os.Stderr, "evaluating %s...\n", ev.Criterion)
	case evaluate.EventSucceeded:
		fmt.Fprintf(os.Stderr, "[%d/%d] %s done\n", ev.Completed, ev.Total, ev.Criterion)
	case evaluate.EventFailed:
		fmt.Fprintf(os.Stderr, "[%d/%d] %s FAILED\n", ev.Completed, ev.Total, ev.Criterion)
	}
}
