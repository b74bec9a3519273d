// File: cmd/gantry/services.go
// Brief: `gantry services` command: multi-service decomposition report.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/gantry/internal/scan"
	"github.com/example/gantry/internal/services"
)

func newServicesCommand(g *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "services [PATH]",
		Short: "Decompose a repository into services, shared resources, and routes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := g.logger()
			if err != nil {
				return err
			}
			root, err := resolveRepoPath(args)
			if err != nil {
				return err
			}
			sig, err := scan.Collect(cmd.Context(), root, scan.Options{Log: log})
			if err != nil {
				return err
			}
			dec := services.Decompose(root, sig, services.Options{Log: log})
			switch strings.ToLower(strings.TrimSpace(output)) {
			case "", "table":
				return printDecomposition(cmd.OutOrStdout(), dec)
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(dec)
			default:
				return fmt.Errorf("unknown --output %q (expected table|json)", output)
			}
		},
	}
	cmd.Flags().StringVar(&output, "output", "table", "Output format: table|json")
	decorateCommandHelp(cmd, "Services Flags")
	return cmd
}

func printDecomposition(w io.Writer, dec *services.Decomposition) error {
	if dec == nil || len(dec.Services) == 0 {
		fmt.Fprintln(w, "No services found.")
		return nil
	}

	fmt.Fprintln(w, "Services:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATH\tRUNTIME\tFRAMEWORK\tPORT\tHEALTH\tSOURCE")
	for _, svc := range dec.Services {
		port := ""
		if len(svc.Ports) > 0 {
			port = fmt.Sprintf("%d", svc.Ports[0])
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			svc.ID,
			svc.Path,
			svc.Runtime,
			orDash(svc.Framework),
			orDash(port),
			orDash(svc.HealthPath),
			svc.Source,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(dec.SharedResources) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Shared resources:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tNAME\tMANAGED TARGET")
		for _, res := range dec.SharedResources {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Category, res.Name, orDash(res.ManagedTarget))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(dec.Routes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Routes:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PRIORITY\tPATTERN\tSERVICE")
		for _, route := range dec.Routes {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", route.Priority, route.PathPattern, route.ServiceID)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
