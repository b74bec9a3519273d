// File: cmd/gantry/deploy.go
// Brief: `gantry deploy` command: drive one repository through the pipeline.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/example/gantry/internal/console"
	"github.com/example/gantry/internal/credentials"
	"github.com/example/gantry/internal/pipeline"
	"github.com/example/gantry/internal/plugin"
	"github.com/example/gantry/internal/plugins"
	"github.com/example/gantry/internal/policy"
	"github.com/example/gantry/internal/scan"
)

func newDeployCommand(g *globalOptions) *cobra.Command {
	var (
		stackOverride string
		policyRef     string
		policyMode    string
		policyReport  string
		credsFile     string
		output        string
		quiet         bool
		timeout       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "deploy [PATH]",
		Short: "Detect, build, provision, and deploy a repository",
		Long: `Deploy drives one repository through the full pipeline. Detection picks the
stack (or --stack forces one), Rego policies can veto the plan before any
build work, and the run's session is durably recorded for 'gantry status'.

The exit code is non-zero whenever the run ends in a failure state.`,
		Args: cobra.MaximumNArgs(1),
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
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			reg := plugin.NewRegistry(log)
			if err := plugins.RegisterBuiltins(reg, plugins.Options{Log: log, WorkDir: workspacesDir(dataDir)}); err != nil {
				return err
			}

			var gate pipeline.PlanGate
			if policyRef != "" {
				bundle, err := policy.LoadBundle(ctx, policyRef)
				if err != nil {
					return fmt.Errorf("load policy bundle: %w", err)
				}
				pg, err := newPolicyGate(bundle, policyMode, policyReport, log)
				if err != nil {
					return err
				}
				gate = pg
			}

			creds := plugin.Credentials{}
			if credsFile != "" {
				resolved, audit, err := credentials.LoadAndResolve(ctx, credsFile)
				if err != nil {
					return err
				}
				creds = resolved
				if !audit.Empty() {
					log.V(1).Info("credentials resolved", "count", len(audit.Entries))
				}
			}

			store, err := pipeline.OpenStore(statePath(dataDir))
			if err != nil {
				return err
			}
			defer store.Close()

			sig, err := scan.Collect(ctx, root, scan.Options{Log: log})
			if err != nil {
				return err
			}

			var observers []pipeline.EventObserver
			runConsole, linePrinter := buildRunOutput(cmd, root, quiet, output)
			if runConsole != nil {
				observers = append(observers, runConsole)
			}
			if linePrinter != nil {
				observers = append(observers, linePrinter)
			}

			pipe := pipeline.New(reg, pipeline.Options{
				Log:          log,
				Store:        store,
				ArtifactsDir: sessionsDir(dataDir),
				Gate:         gate,
				Observers:    observers,
			})
			_, err = pipe.Run(ctx, pipeline.Analysis{
				RepoPath:      root,
				Signals:       sig,
				RepositoryURL: sig.RepositoryURL,
			}, creds, stackOverride)
			if runConsole != nil {
				runConsole.Done()
			}
			if err != nil {
				return err
			}

			snap := pipe.Session().Snapshot()
			if strings.EqualFold(output, "json") {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(snap); err != nil {
					return err
				}
			} else if !quiet {
				printDeployOutcome(cmd, snap)
			}
			if snap.Status.Failure() {
				return fmt.Errorf("deployment %s: %s", snap.Status, snap.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stackOverride, "stack", "", "Force a stack instead of detecting one")
	cmd.Flags().StringVar(&policyRef, "policy", "", "Rego policy bundle: directory, .rego file, archive, or URL")
	cmd.Flags().StringVar(&policyMode, "policy-mode", "enforce", "Policy enforcement mode: enforce|warn")
	cmd.Flags().StringVar(&policyReport, "policy-report", "", "Write the policy evaluation report to this file")
	cmd.Flags().StringVar(&credsFile, "credentials-file", "", "YAML credentials file; secret:// references are resolved before provisioning")
	cmd.Flags().StringVar(&output, "output", "", "Print the final session as json instead of the summary")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress progress output")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this duration (0 means no limit)")
	decorateCommandHelp(cmd, "Deploy Flags")
	return cmd
}

// buildRunOutput picks the progress surface: an in-place console on a TTY,
// one line per event everywhere else, nothing when quiet or emitting JSON.
func buildRunOutput(cmd *cobra.Command, root string, quiet bool, output string) (*console.RunConsole, *console.LinePrinter) {
	if quiet || strings.EqualFold(output, "json") {
		return nil, nil
	}
	out := cmd.OutOrStdout()
	colorize := !color.NoColor
	if width, ok := console.Width(out); ok {
		return console.NewRunConsole(out, root, console.Options{
			Enabled: true,
			Width:   width,
			Color:   colorize,
		}), nil
	}
	return nil, console.NewLinePrinter(out, colorize)
}

func newPolicyGate(bundle *policy.Bundle, mode, reportPath string, log logr.Logger) (*policy.Gate, error) {
	var m policy.Mode
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "enforce":
		m = policy.ModeEnforce
	case "warn":
		m = policy.ModeWarn
	default:
		return nil, fmt.Errorf("unknown --policy-mode %q (expected enforce|warn)", mode)
	}
	gate := policy.NewGate(bundle, m, log)
	if reportPath != "" {
		expanded, err := homedir.Expand(reportPath)
		if err != nil {
			return nil, fmt.Errorf("expand --policy-report path: %w", err)
		}
		gate.ReportPath = expanded
	}
	return gate, nil
}

func printDeployOutcome(cmd *cobra.Command, snap pipeline.Snapshot) {
	out := cmd.OutOrStdout()
	if snap.Status == pipeline.StatusCompleted {
		fmt.Fprintf(out, "Deployed %s in %.1fs (session %s)\n", snap.StackKey, snap.ElapsedSeconds, snap.ID)
		if snap.Deploy != nil && snap.Deploy.URL != "" {
			fmt.Fprintf(out, "URL: %s\n", snap.Deploy.URL)
		}
		return
	}
	fmt.Fprintf(out, "Run %s after %.1fs (session %s)\n", snap.Status, snap.ElapsedSeconds, snap.ID)
}
