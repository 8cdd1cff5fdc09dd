package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dgallion1/contractlens/internal/pipeline"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Show the stage table in execution order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		// No reasoning calls are made; the graph only needs the table.
		p, err := newPipeline(cfg, nil, log)
		if err != nil {
			return err
		}
		return printStages(cmd, p.Graph())
	},
}

func printStages(cmd *cobra.Command, g *pipeline.Graph) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTAGE\tDEPENDS ON\tMANDATE")
	for i, def := range g.Definitions() {
		deps := "-"
		if len(def.DependsOn) > 0 {
			deps = strings.Join(def.DependsOn, ", ")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, def.Name, deps, firstLine(def.Mandate))
	}
	return tw.Flush()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if r := []rune(line); len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return line
}
