package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/gantry/internal/pipeline"
)

func newSessionsCommand(g *globalOptions) *cobra.Command {
	var (
		limit  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent deployment sessions from the state store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, err := g.resolveDataDir()
			if err != nil {
				return err
			}
			store, err := pipeline.OpenStore(statePath(dataDir))
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			switch strings.ToLower(strings.TrimSpace(output)) {
			case "", "table":
				return printSessionsTable(cmd.OutOrStdout(), records)
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			default:
				return fmt.Errorf("unknown --output %q (expected table|json)", output)
			}
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to list (newest first)")
	cmd.Flags().StringVar(&output, "output", "table", "Output format: table|json")
	decorateCommandHelp(cmd, "Sessions Flags")
	return cmd
}

func printSessionsTable(w io.Writer, records []pipeline.SessionRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No sessions recorded yet.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "SESSION\tSTACK\tSTATUS\tELAPSED\tUPDATED\tERROR")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1fs\t%s\t%s\n",
			rec.SessionID,
			orDash(rec.StackKey),
			strings.ToUpper(string(rec.Status)),
			rec.ElapsedSeconds,
			rec.UpdatedAt,
			truncateError(rec.Error),
		)
	}
	return nil
}

// truncateError keeps failure messages to one table cell.
func truncateError(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "-"
	}
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	const max = 48
	if len(msg) > max {
		return msg[:max-1] + "…"
	}
	return msg
}
