package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"xaio/internal/intake"
)

func newIntakeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "intake <url> [url ...]",
		Short: "Add URLs to the ledger as work items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			source := intake.NewStaticSource(args)
			created, err := intake.Ingest(cmd.Context(), source, eng.store, eng.logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %d work items (%d URLs supplied)\n", created, len(args))
			if created < len(args) {
				fmt.Fprintln(out, "Remaining URLs were duplicates of existing items or not usable")
			}
			return nil
		},
	}
}
