// File: cmd/gantry/root.go
// Brief: Root command, global flags, and viper environment binding.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/gantry/internal/logging"
)

const defaultDataDir = "~/.gantry"

// globalOptions carries the persistent flag values shared by every
// subcommand.
type globalOptions struct {
	logLevel string
	dataDir  string
	noColor  bool
}

func (g *globalOptions) logger() (logr.Logger, error) {
	return logging.New(g.logLevel)
}

// resolveDataDir expands ~ and returns the absolute data directory.
func (g *globalOptions) resolveDataDir() (string, error) {
	expanded, err := homedir.Expand(g.dataDir)
	if err != nil {
		return "", fmt.Errorf("expand data dir: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve data dir: %w", err)
	}
	return abs, nil
}

// Fixed layout under the data directory.
func statePath(dataDir string) string     { return filepath.Join(dataDir, "state", "gantry.db") }
func sessionsDir(dataDir string) string   { return filepath.Join(dataDir, "sessions") }
func workspacesDir(dataDir string) string { return filepath.Join(dataDir, "workspaces") }

// resolveRepoPath turns the optional positional PATH argument into an
// absolute directory, defaulting to the working directory.
func resolveRepoPath(args []string) (string, error) {
	raw := "."
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		raw = args[0]
	}
	expanded, err := homedir.Expand(raw)
	if err != nil {
		return "", fmt.Errorf("expand repository path: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve repository path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("repository path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("repository path %s is not a directory", abs)
	}
	return abs, nil
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{logLevel: "info", dataDir: defaultDataDir}
	cmd := &cobra.Command{
		Use:           "gantry",
		Short:         "Zero-config deployment pipeline for web application repositories",
		Long:          "gantry detects what a repository is, plans how to build it, and drives the plan\nthrough build, provision, and deploy phases with durable session state.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level for gantry output (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", opts.dataDir, "Directory holding session state, artifacts, and deploy workspaces")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable ANSI colors")

	analyzeCmd := newAnalyzeCommand(opts)
	deployCmd := newDeployCommand(opts)
	servicesCmd := newServicesCommand(opts)
	sessionsCmd := newSessionsCommand(opts)
	statusCmd := newStatusCommand(opts)
	stacksCmd := newStacksCommand(opts)
	docsCmd := newDocsCommand()
	versionCmd := newVersionCommand()
	cmd.AddCommand(
		analyzeCmd,
		deployCmd,
		servicesCmd,
		sessionsCmd,
		statusCmd,
		stacksCmd,
		docsCmd,
		versionCmd,
	)
	cmd.Example = `  # Detect the stack and preview the plan
  gantry analyze ./my-app

  # Deploy a repository end to end
  gantry deploy ./my-app

  # Force a stack and gate the plan with Rego policies
  gantry deploy ./my-app --stack static --policy ./policies

  # Inspect the most recent session
  gantry status --events`
	decorateCommandHelp(cmd, "Global Flags")
	bindViper(cmd, analyzeCmd, deployCmd, servicesCmd, sessionsCmd, statusCmd, stacksCmd, docsCmd, versionCmd)
	return cmd
}

// bindViper backfills unchanged flags from GANTRY_* environment variables
// and an optional config file, so every flag can be set without touching the
// command line.
func bindViper(commands ...*cobra.Command) {
	if len(commands) == 0 {
		return
	}
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("GANTRY")
	v.AutomaticEnv()
	configFile := os.Getenv("GANTRY_CONFIG")
	configureConfigFile(v, configFile)

	cobra.OnInitialize(func() {
		for _, cmd := range commands {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				cobra.CheckErr(err)
			}
			if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
				cobra.CheckErr(err)
			}
		}
		if err := readConfigFile(v, configFile != ""); err != nil {
			cobra.CheckErr(err)
		}
		for _, cmd := range commands {
			flagSets := []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()}
			for _, fs := range flagSets {
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Changed {
						return
					}
					if !v.IsSet(f.Name) {
						return
					}
					val := fmt.Sprintf("%v", v.Get(f.Name))
					if val != "" {
						_ = f.Value.Set(val)
					}
				})
			}
		}
	})
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("config")
	for _, dir := range configSearchDirs() {
		v.AddConfigPath(dir)
	}
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func configSearchDirs() []string {
	added := make(map[string]struct{})
	var dirs []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, ok := added[path]; ok {
			return
		}
		added[path] = struct{}{}
		dirs = append(dirs, path)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		add(filepath.Join(xdg, "gantry"))
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		add(filepath.Join(home, ".config", "gantry"))
		add(filepath.Join(home, ".gantry"))
	}
	return dirs
}
