// File: cmd/gantry/docs.go
// Brief: `gantry docs` command: render embedded documentation topics.

package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	gantrydocs "github.com/example/gantry/docs"
	"github.com/example/gantry/internal/console"
)

type docTopic struct {
	Name     string
	Short    string
	Markdown string
}

var docTopics = []docTopic{
	{Name: "getting-started", Short: "First deployment, sessions, configuration", Markdown: gantrydocs.GettingStartedMD},
	{Name: "stacks", Short: "Signal extraction and stack scoring", Markdown: gantrydocs.StacksMD},
	{Name: "services", Short: "Multi-service decomposition and routing", Markdown: gantrydocs.ServicesMD},
	{Name: "policy", Short: "Rego plan policies and enforcement modes", Markdown: gantrydocs.PolicyMD},
	{Name: "credentials", Short: "secret:// references and providers", Markdown: gantrydocs.CredentialsMD},
}

func newDocsCommand() *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "docs [TOPIC]",
		Short: "Show gantry documentation topics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TOPIC\tABOUT")
				for _, topic := range sortedTopics() {
					fmt.Fprintf(tw, "%s\t%s\n", topic.Name, topic.Short)
				}
				return tw.Flush()
			}

			name := strings.ToLower(strings.TrimSpace(args[0]))
			topic, ok := findTopic(name)
			if !ok {
				return fmt.Errorf("unknown topic %q (run 'gantry docs' to list topics)", args[0])
			}
			if plain {
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(topic.Markdown, "\n"))
				return nil
			}

			width := 100
			if cols, ok := console.Width(cmd.OutOrStdout()); ok && cols > 0 {
				width = cols
			}
			renderer, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(width),
			)
			if err != nil {
				return fmt.Errorf("markdown renderer: %w", err)
			}
			rendered, err := renderer.Render(topic.Markdown)
			if err != nil {
				return fmt.Errorf("render topic %q: %w", topic.Name, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Print raw markdown without terminal rendering")
	decorateCommandHelp(cmd, "Docs Flags")
	return cmd
}

func findTopic(name string) (docTopic, bool) {
	for _, topic := range docTopics {
		if topic.Name == name {
			return topic, true
		}
	}
	return docTopic{}, false
}

func sortedTopics() []docTopic {
	out := append([]docTopic(nil), docTopics...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
