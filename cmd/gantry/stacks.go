package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/gantry/internal/plugin"
	"github.com/example/gantry/internal/plugins"
)

func newStacksCommand(g *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "stacks",
		Short: "List registered stack plugins and their health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := g.logger()
			if err != nil {
				return err
			}
			dataDir, err := g.resolveDataDir()
			if err != nil {
				return err
			}
			reg := plugin.NewRegistry(log)
			if err := plugins.RegisterBuiltins(reg, plugins.Options{Log: log, WorkDir: workspacesDir(dataDir)}); err != nil {
				return err
			}
			report := reg.Health(cmd.Context())

			switch strings.ToLower(strings.TrimSpace(output)) {
			case "", "table":
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "STACK\tHEALTH")
				for _, key := range reg.StackKeys() {
					health := "ok"
					if msg := report.Stacks[key]; msg != "" {
						health = msg
					}
					fmt.Fprintf(tw, "%s\t%s\n", key, health)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				if !report.Healthy {
					return fmt.Errorf("no healthy stack plugins")
				}
				return nil
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(struct {
					Healthy bool              `json:"healthy"`
					Stacks  map[string]string `json:"stacks"`
				}{report.Healthy, report.Stacks}); err != nil {
					return err
				}
				if !report.Healthy {
					return fmt.Errorf("no healthy stack plugins")
				}
				return nil
			default:
				return fmt.Errorf("unknown --output %q (expected table|json)", output)
			}
		},
	}
	cmd.Flags().StringVar(&output, "output", "table", "Output format: table|json")
	decorateCommandHelp(cmd, "Stacks Flags")
	return cmd
}
