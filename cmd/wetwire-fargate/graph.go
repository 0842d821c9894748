package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lex00/wetwire-fargate-go/internal/graph"
	"github.com/lex00/wetwire-fargate-go/internal/synth"
)

func newGraphCmd(global *globalOptions) *cobra.Command {
	var (
		outputFormat      string
		includeParameters bool
		cluster           bool
		reachability      bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Generate a graph of resource dependencies or reachability",
		Long: `Generate a DOT or Mermaid graph of the synthesized resources, or with
--reach, of the security groups and which callers can reach the service.

The output can be rendered with Graphviz:
    wetwire-fargate graph | dot -Tpng -o deps.png

Examples:
    wetwire-fargate graph --cluster           # cluster by component
    wetwire-fargate graph -f mermaid
    wetwire-fargate graph --reach`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var format graph.Format
			switch outputFormat {
			case "dot":
				format = graph.FormatDOT
			case "mermaid":
				format = graph.FormatMermaid
			default:
				return fmt.Errorf("unknown format: %s (use 'dot' or 'mermaid')", outputFormat)
			}

			_, st, err := global.loadStack(cmd.Context())
			if err != nil {
				return err
			}

			gen := &graph.Generator{
				Format:             format,
				IncludeParameters:  includeParameters,
				ClusterByComponent: cluster,
			}
			if reachability {
				return gen.Reachability(st, os.Stdout)
			}

			syn, err := synth.Synthesize(st)
			if err != nil {
				return err
			}
			return gen.Generate(syn.Resources, syn.Parameters, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "dot", "Output format: dot or mermaid")
	cmd.Flags().BoolVarP(&includeParameters, "include-parameters", "p", false, "Include parameter nodes in the graph")
	cmd.Flags().BoolVar(&cluster, "cluster", false, "Cluster resources by component")
	cmd.Flags().BoolVar(&reachability, "reach", false, "Graph security groups and caller reachability instead")

	return cmd
}
