package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"xaio/internal/runner"
	"xaio/internal/stage"
)

func newRunStageCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "run-stage",
		Short: "Run a single stage over its eligible items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stage.Valid(stageFlag) {
				return fmt.Errorf("unknown stage %q (known: %v)", stageFlag, stage.Order())
			}

			eng, err := ctx.openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			adapter := eng.adapters[stageFlag]
			r := runner.New(eng.store, eng.leases, eng.artifacts, adapter, eng.logger, runner.Options{
				MaxAttempts: eng.cfg.Pipeline.MaxAttempts,
				CoolDown:    eng.cfg.RetryCoolDown(),
				LeaseTTL:    eng.cfg.ItemLeaseTTL(),
			})

			limit := limitFlag
			if limit <= 0 {
				limit = eng.cfg.Pipeline.BatchSize
			}
			summary, err := r.Run(cmd.Context(), limit)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: eligible=%d succeeded=%d skipped=%d failed=%d\n",
				stageLabel(stageFlag), summary.Eligible, summary.Succeeded, summary.Skipped, summary.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&stageFlag, "stage", "", "Stage to run (capture, reduce, meta, claims, merge, publish)")
	cmd.Flags().IntVar(&limitFlag, "limit", 0, "Maximum items to process (defaults to the configured batch size)")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}
