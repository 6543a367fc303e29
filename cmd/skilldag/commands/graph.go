package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skilldag/skilldag/pkg/policy"
)

func newLayersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "layers <workflow>",
		Short: "Print the execution layers of a workflow",
		Long: `Print the topological order of a workflow grouped into layers.

Layer 0 holds the skills with no dependencies; every other skill sits one layer
below its deepest dependency. Skills in the same layer do not depend on each other.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			wf, err := openWorkflow(ctx, args[0])
			if err != nil {
				return err
			}
			defer wf.Close(ctx)

			info, err := policy.DescribeGraph(wf.graph)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(os.Stdout, info)
			}

			fmt.Printf("Order: %s\n\n", strings.Join(info.Order, " -> "))
			for depth, names := range info.Layers {
				sorted := append([]string(nil), names...)
				sort.Strings(sorted)
				bold.Printf("Layer %d", depth)
				fmt.Printf(": %s\n", strings.Join(sorted, ", "))
			}
			return nil
		},
	}
}

func newGraphCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <workflow>",
		Short: "Print a workflow graph in Graphviz DOT format",
		Example: `  # Render to SVG
  skilldag graph pipeline.yaml | dot -Tsvg > pipeline.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			wf, err := openWorkflow(ctx, args[0])
			if err != nil {
				return err
			}
			defer wf.Close(ctx)

			fmt.Print(wf.graph.ToDOT())
			return nil
		},
	}
}
