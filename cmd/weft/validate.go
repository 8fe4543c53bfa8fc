package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/weft/internal/cli"
	"github.com/aretw0/weft/internal/compiler"
	"github.com/aretw0/weft/internal/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a flow file for consistency",
	Long: `Reports broken references, unknown components and cycles. A node on or
behind a cycle would never run.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(cmd, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Flow is valid! ✅")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, path string) error {
	cfg, logger, err := setup(cmd, true)
	if err != nil {
		return err
	}
	lib, err := cli.NewLibrary(cfg, logger)
	if err != nil {
		return err
	}
	doc, err := compiler.NewParser().ParseFile(path)
	if err != nil {
		return err
	}
	return validator.ValidateDocument(doc, lib)
}
