package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"xaio/internal/ledger"
	"xaio/internal/stage"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var withHistory bool

	cmd := &cobra.Command{
		Use:   "show <item-id|url>",
		Short: "Show one work item and its stage records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			item, err := resolveItem(cmd, eng, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Item:       %s\n", item.ID)
			fmt.Fprintf(out, "URL:        %s\n", item.CanonicalKey)
			if item.SourceID != "" {
				fmt.Fprintf(out, "Source:     %s\n", item.SourceID)
			}
			if item.PublishID != "" {
				fmt.Fprintf(out, "Publish id: %s\n", item.PublishID)
			}
			fmt.Fprintf(out, "Created:    %s\n", formatTimestamp(item.CreatedAt))

			records, err := eng.store.ListRecords(cmd.Context(), item.ID)
			if err != nil {
				return err
			}
			byStage := make(map[string]*ledger.Record, len(records))
			for _, record := range records {
				byStage[record.Stage] = record
			}

			rows := make([][]string, 0, len(stage.Order()))
			for _, stageName := range stage.Order() {
				record, ok := byStage[stageName]
				if !ok {
					rows = append(rows, []string{stageLabel(stageName), "-", "", "", "", ""})
					continue
				}
				rows = append(rows, []string{
					stageLabel(stageName),
					string(record.Status),
					strconv.Itoa(record.Attempts),
					shortHash(record.ArtifactHash),
					record.ErrorKind,
					formatTimestamp(record.UpdatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Stage", "Status", "Attempts", "Artifact", "Error", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))

			if withHistory {
				return printHistory(cmd, eng, item.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withHistory, "history", false, "Include the full transition history")
	return cmd
}

func resolveItem(cmd *cobra.Command, eng *engine, ref string) (*ledger.Item, error) {
	item, err := eng.store.GetItem(cmd.Context(), ref)
	if err != nil {
		return nil, err
	}
	if item == nil {
		item, err = eng.store.FindItemByKey(cmd.Context(), ref)
		if err != nil {
			return nil, err
		}
	}
	if item == nil {
		return nil, fmt.Errorf("no work item matches %q", ref)
	}
	return item, nil
}

func printHistory(cmd *cobra.Command, eng *engine, itemID string) error {
	out := cmd.OutOrStdout()
	for _, stageName := range stage.Order() {
		entries, err := eng.store.History(cmd.Context(), itemID, stageName)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(out, "\nHistory for %s:\n", stageLabel(stageName))
		rows := make([][]string, 0, len(entries))
		for _, entry := range entries {
			rows = append(rows, []string{
				strconv.FormatInt(entry.Version, 10),
				string(entry.Status),
				strconv.Itoa(entry.Attempts),
				shortHash(entry.InputHash),
				shortHash(entry.ArtifactHash),
				entry.ErrorMessage,
				formatTimestamp(entry.RecordedAt),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Version", "Status", "Attempts", "Input", "Artifact", "Error", "Recorded"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
		))
	}
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}
