package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"xaio/internal/stage"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-stage record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			items, err := eng.store.ListItems(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := eng.store.Stats(cmd.Context(), stage.Order())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Work items: %d\n", len(items))

			rows := make([][]string, 0, len(counts))
			for _, sc := range counts {
				rows = append(rows, []string{
					stageLabel(sc.Stage),
					strconv.Itoa(sc.Pending),
					strconv.Itoa(sc.Running),
					strconv.Itoa(sc.Done),
					strconv.Itoa(sc.Failed),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Stage", "Pending", "Running", "Done", "Failed"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}
