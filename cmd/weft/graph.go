package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/weft/internal/compiler"
	"github.com/aretw0/weft/internal/presentation/graph"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <file>",
	Short: "Export the flow graph visualization",
	Long:  `Reads a flow file and outputs a Mermaid diagram (graph LR) with one subgraph per nested graph and group.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := compiler.NewParser().ParseFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading flow: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(doc, nil))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
