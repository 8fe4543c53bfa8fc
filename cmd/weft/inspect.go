package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/weft/internal/compiler"
	"github.com/aretw0/weft/internal/presentation/tui"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Describe the nodes, edges and groups of a flow",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := compiler.NewParser().ParseFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading flow: %v\n", err)
			os.Exit(1)
		}
		report := tui.InspectReport(doc)
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			fmt.Fprint(cmd.OutOrStdout(), report)
			return
		}
		out, err := tui.NewRenderer()(report)
		if err != nil {
			out = report
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Bool("raw", false, "Print the markdown without terminal styling")
}
