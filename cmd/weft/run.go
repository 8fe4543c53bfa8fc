package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/weft/internal/cli"
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Execute a flow file",
	Long: `Loads a flow from a YAML or JSON file, validates it and runs one of its
graphs to completion. Nodes run as soon as all of their predecessors finished.
Ctrl+C stops the run.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := cli.RunOptions{File: args[0]}
		opts.Graph, _ = cmd.Flags().GetString("graph")
		opts.Timeout, _ = cmd.Flags().GetDuration("timeout")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Quiet, _ = cmd.Flags().GetBool("quiet")

		// Structured logs would interleave with the progress lines.
		cfg, logger, err := setup(cmd, opts.JSON || opts.Quiet)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		rt, err := cli.NewRuntime(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing weft: %v\n", err)
			os.Exit(1)
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		runErr := cli.Run(ctx, rt, opts, cmd.OutOrStdout())

		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Close(closeCtx)

		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("graph", "", "Graph to run (default: the whole flow)")
	runCmd.Flags().Duration("timeout", 0, "Stop the run after this duration")
	runCmd.Flags().Bool("json", false, "Print a JSON summary instead of progress lines")
	runCmd.Flags().BoolP("quiet", "q", false, "Only report the outcome")
}
