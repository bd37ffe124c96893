package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"xaio/internal/stage"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string

	cmd := &cobra.Command{
		Use:   "retry <item-id|url>",
		Short: "Re-arm a failed stage record for another attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stage.Valid(stageFlag) {
				return fmt.Errorf("unknown stage %q (known: %v)", stageFlag, stage.Order())
			}

			eng, err := ctx.openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			item, err := resolveItem(cmd, eng, args[0])
			if err != nil {
				return err
			}
			if err := eng.store.RetryStage(cmd.Context(), item.ID, stageFlag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Re-armed %s for item %s; the next sweep picks it up\n", stageLabel(stageFlag), item.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&stageFlag, "stage", "", "Stage whose failed record should retry")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string

	cmd := &cobra.Command{
		Use:   "reset <item-id|url>",
		Short: "Force a stage to recompute, cascading through downstream stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stage.Valid(stageFlag) {
				return fmt.Errorf("unknown stage %q (known: %v)", stageFlag, stage.Order())
			}

			eng, err := ctx.openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			item, err := resolveItem(cmd, eng, args[0])
			if err != nil {
				return err
			}
			if err := eng.store.ResetStage(cmd.Context(), item.ID, stageFlag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s for item %s; downstream stages recompute as new artifacts land\n", stageLabel(stageFlag), item.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&stageFlag, "stage", "", "Stage to recompute from")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}
