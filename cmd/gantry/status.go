package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/gantry/internal/pipeline"
)

func newStatusCommand(g *globalOptions) *cobra.Command {
	var (
		withEvents bool
		output     string
	)
	cmd := &cobra.Command{
		Use:   "status [SESSION_ID]",
		Short: "Show one deployment session, defaulting to the most recent",
		Args:  cobra.MaximumNArgs(1),
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
			ctx := cmd.Context()

			sessionID := ""
			if len(args) > 0 {
				sessionID = strings.TrimSpace(args[0])
			}
			if sessionID == "" {
				sessionID, err = store.MostRecentSessionID(ctx)
				if err != nil {
					return err
				}
			}

			snap, err := store.GetSession(ctx, sessionID)
			if err != nil {
				return err
			}
			var events []pipeline.Event
			if withEvents {
				events, err = store.ListEvents(ctx, sessionID)
				if err != nil {
					return err
				}
			}

			switch strings.ToLower(strings.TrimSpace(output)) {
			case "", "table":
				printSessionStatus(cmd.OutOrStdout(), snap)
				if withEvents {
					printSessionEvents(cmd.OutOrStdout(), events)
				}
				return nil
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if withEvents {
					return enc.Encode(struct {
						Session pipeline.Snapshot `json:"session"`
						Events  []pipeline.Event  `json:"events"`
					}{snap, events})
				}
				return enc.Encode(snap)
			default:
				return fmt.Errorf("unknown --output %q (expected table|json)", output)
			}
		},
	}
	cmd.Flags().BoolVar(&withEvents, "events", false, "Include the session's event log")
	cmd.Flags().StringVar(&output, "output", "table", "Output format: table|json")
	decorateCommandHelp(cmd, "Status Flags")
	return cmd
}

func printSessionStatus(w io.Writer, snap pipeline.Snapshot) {
	fmt.Fprintf(w, "Session: %s\n", snap.ID)
	fmt.Fprintf(w, "Repo:    %s\n", snap.RepoPath)
	fmt.Fprintf(w, "Stack:   %s\n", orDash(snap.StackKey))
	fmt.Fprintf(w, "Status:  %s\n", strings.ToUpper(string(snap.Status)))
	fmt.Fprintf(w, "Elapsed: %.1fs\n", snap.ElapsedSeconds)
	fmt.Fprintf(w, "Updated: %s\n", snap.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	if snap.Error != "" {
		fmt.Fprintf(w, "Error:   %s\n", snap.Error)
	}
	if snap.Deploy != nil && snap.Deploy.URL != "" {
		fmt.Fprintf(w, "URL:     %s\n", snap.Deploy.URL)
	}
	if snap.Build != nil && snap.Build.ArtifactDir != "" {
		fmt.Fprintf(w, "Artifact: %s\n", snap.Build.ArtifactDir)
	}
}

func printSessionEvents(w io.Writer, events []pipeline.Event) {
	if len(events) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Events:")
	for _, ev := range events {
		line := fmt.Sprintf("  %s  %-15s", ev.TS, ev.Type)
		if ev.Phase != "" {
			line += " " + ev.Phase
		}
		if ev.Status != "" {
			line += " " + ev.Status
		}
		if ev.ElapsedSeconds > 0 {
			line += fmt.Sprintf(" (%.1fs)", ev.ElapsedSeconds)
		}
		if ev.Message != "" {
			line += ": " + ev.Message
		}
		fmt.Fprintln(w, line)
	}
}
