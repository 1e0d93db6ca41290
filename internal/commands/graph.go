package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/ledgerlens/internal/dag"
	"github.com/dwsmith1983/ledgerlens/internal/engine"
)

// NewGraphCmd creates the graph command.
func NewGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the component graph",
		Long:  "Lists every component in execution order with its input and output tables. Critical components fail the whole run.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := engine.NewGraph(engine.Params{}, nil)
			if err != nil {
				return err
			}
			printGraph(cmd.OutOrStdout(), g)
			return nil
		},
	}
}

func printGraph(w io.Writer, g *dag.Graph) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintln(w, "Sources:")
	_, _ = fmt.Fprintf(w, "  %s\n\n", strings.Join(g.Sources(), ", "))

	_, _ = bold.Fprintln(w, "Components:")
	for _, n := range g.Nodes() {
		name := n.Name
		if n.Critical {
			name += color.RedString(" (critical)")
		}
		_, _ = fmt.Fprintf(w, "  %s\n", name)
		if up := g.Upstream(n.Name); len(up) > 0 {
			_, _ = fmt.Fprintf(w, "    after:   %s\n", strings.Join(up, ", "))
		}
		_, _ = fmt.Fprintf(w, "    reads:   %s\n", strings.Join(n.Inputs, ", "))
		_, _ = fmt.Fprintf(w, "    writes:  %s\n", strings.Join(n.Outputs, ", "))
	}
}
