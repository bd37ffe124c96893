package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"xaio/internal/scheduler"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one full pipeline pass over all eligible items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			sched := scheduler.New(eng.cfg, eng.store, eng.leases, eng.artifacts, nil, eng.adapters, eng.logger)
			result, err := sched.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sweep %s finished in %s\n", result.SweepID, result.Duration.Round(1e6))
			if result.Ingested > 0 {
				fmt.Fprintf(out, "Ingested %d new items\n", result.Ingested)
			}

			rows := make([][]string, 0, len(result.Stages))
			for _, sr := range result.Stages {
				rows = append(rows, []string{
					stageLabel(sr.Stage),
					strconv.Itoa(sr.Summary.Eligible),
					strconv.Itoa(sr.Summary.Succeeded),
					strconv.Itoa(sr.Summary.Skipped),
					strconv.Itoa(sr.Summary.Failed),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Stage", "Eligible", "Succeeded", "Skipped", "Failed"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}
