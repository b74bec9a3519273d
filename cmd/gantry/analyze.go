// File: cmd/gantry/analyze.go
// Brief: `gantry analyze` command: stack detection and plan preview.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	homedir "github.com/mitchellh/go-homedir"
	difflib "github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/example/gantry/internal/classify"
	"github.com/example/gantry/internal/plugin"
	"github.com/example/gantry/internal/plugins"
	"github.com/example/gantry/internal/scan"
	"github.com/example/gantry/internal/services"
)

// analysisReport is the machine-readable analyze output. A saved JSON report
// can be diffed against a later run via --against.
type analysisReport struct {
	Path          string                  `json:"path"`
	RepositoryURL string                  `json:"repository_url,omitempty"`
	Stack         string                  `json:"stack,omitempty"`
	Plan          *plugin.StackPlan       `json:"plan,omitempty"`
	Detection     string                  `json:"detection_error,omitempty"`
	Candidates    []candidateSummary      `json:"candidates,omitempty"`
	Services      *services.Decomposition `json:"services,omitempty"`
}

type candidateSummary struct {
	StackKey   string   `json:"stack_key"`
	Confidence float64  `json:"confidence"`
	Required   []string `json:"required,omitempty"`
	Optional   []string `json:"optional,omitempty"`
	Patterns   []string `json:"patterns,omitempty"`
	Configs    []string `json:"configs,omitempty"`
}

func newAnalyzeCommand(g *globalOptions) *cobra.Command {
	var (
		output       string
		withServices bool
		againstPath  string
	)
	cmd := &cobra.Command{
		Use:   "analyze [PATH]",
		Short: "Detect a repository's stack and preview the deployment plan",
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
			dataDir, err := g.resolveDataDir()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			sig, err := scan.Collect(ctx, root, scan.Options{Log: log})
			if err != nil {
				return err
			}

			report := analysisReport{Path: root, RepositoryURL: sig.RepositoryURL}
			for _, m := range classify.Rank(sig) {
				if m.Confidence == 0 {
					continue
				}
				report.Candidates = append(report.Candidates, candidateSummary{
					StackKey:   m.StackKey,
					Confidence: m.Confidence,
					Required:   m.MatchedRequired,
					Optional:   m.MatchedOptional,
					Patterns:   m.MatchedPatterns,
					Configs:    m.MatchedConfigs,
				})
			}

			reg := plugin.NewRegistry(log)
			if err := plugins.RegisterBuiltins(reg, plugins.Options{Log: log, WorkDir: workspacesDir(dataDir)}); err != nil {
				return err
			}
			plan, derr := reg.Detect(ctx, root, plugin.DetectionContext{Signals: sig, RepositoryURL: sig.RepositoryURL})
			if derr != nil {
				report.Detection = derr.Error()
			} else {
				report.Stack = plan.StackKey
				report.Plan = plan
			}

			if withServices {
				report.Services = services.Decompose(root, sig, services.Options{Log: log})
			}

			if againstPath != "" {
				return renderAnalysisDrift(cmd.OutOrStdout(), againstPath, report)
			}
			switch strings.ToLower(strings.TrimSpace(output)) {
			case "", "table":
				return printAnalysisTable(cmd.OutOrStdout(), report)
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			default:
				return fmt.Errorf("unknown --output %q (expected table|json)", output)
			}
		},
	}
	cmd.Flags().StringVar(&output, "output", "table", "Output format: table|json")
	cmd.Flags().BoolVar(&withServices, "services", false, "Include the multi-service decomposition")
	cmd.Flags().StringVar(&againstPath, "against", "", "Diff this analysis against a saved --output json report")
	decorateCommandHelp(cmd, "Analyze Flags")
	return cmd
}

func printAnalysisTable(w io.Writer, report analysisReport) error {
	if report.Detection != "" {
		fmt.Fprintf(w, "No stack detected for %s: %s\n", report.Path, report.Detection)
	} else {
		fmt.Fprintf(w, "Stack:  %s\n", report.Stack)
		if report.Plan != nil {
			fmt.Fprintf(w, "Output: %s\n", report.Plan.OutputDir)
			if len(report.Plan.BuildCommands) > 0 {
				fmt.Fprintln(w, "Build:")
				for _, command := range report.Plan.BuildCommands {
					fmt.Fprintf(w, "  %s\n", command)
				}
			}
			if len(report.Plan.Env) > 0 {
				fmt.Fprintln(w, "Env:")
				for _, key := range sortedKeys(report.Plan.Env) {
					fmt.Fprintf(w, "  %s=%s\n", key, report.Plan.Env[key])
				}
			}
			if mode := report.Plan.ConfigString(plugin.ConfigMode); mode != "" {
				fmt.Fprintf(w, "Mode:   %s\n", mode)
			}
		}
	}
	if report.RepositoryURL != "" {
		fmt.Fprintf(w, "Remote: %s\n", report.RepositoryURL)
	}

	if len(report.Candidates) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Candidates:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STACK\tCONFIDENCE\tREQUIRED\tOPTIONAL\tPATTERNS\tCONFIGS")
		for _, c := range report.Candidates {
			fmt.Fprintf(tw, "%s\t%.2f\t%s\t%d\t%d\t%d\n",
				c.StackKey,
				c.Confidence,
				strings.Join(c.Required, ","),
				len(c.Optional),
				len(c.Patterns),
				len(c.Configs),
			)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if report.Services != nil {
		fmt.Fprintln(w)
		return printDecomposition(w, report.Services)
	}
	return nil
}

// renderAnalysisDrift diffs the current analysis against a previously saved
// JSON report, unified-diff style.
func renderAnalysisDrift(w io.Writer, savedPath string, current analysisReport) error {
	expanded, err := homedir.Expand(savedPath)
	if err != nil {
		return fmt.Errorf("expand --against path: %w", err)
	}
	saved, err := os.ReadFile(expanded)
	if err != nil {
		return fmt.Errorf("read saved analysis: %w", err)
	}
	raw, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return err
	}
	diff := renderUnifiedDiff(string(saved), string(raw), savedPath)
	if strings.TrimSpace(diff) == "" {
		fmt.Fprintf(w, "No drift: analysis matches %s\n", savedPath)
		return nil
	}
	fmt.Fprint(w, diff)
	return nil
}

func renderUnifiedDiff(before string, after string, path string) string {
	before = strings.TrimRight(before, "\n")
	after = strings.TrimRight(after, "\n")
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before + "\n"),
		B:        difflib.SplitLines(after + "\n"),
		FromFile: path + " (saved)",
		ToFile:   path + " (current)",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return ""
	}
	return text
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
