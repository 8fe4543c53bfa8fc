package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/cli"
	"github.com/aretw0/weft/pkg/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the workspaces as MCP tools and resources so that agents can
edit, inspect and run graphs.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, err := setup(cmd, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.MCPAddr
		}

		rt, err := cli.NewRuntime(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing weft: %v\n", err)
			os.Exit(1)
		}
		srv := mcp.NewServer(rt.Hub(), strings.TrimSpace(weft.Version), logger)

		switch transport {
		case "stdio":
			logger.Info("starting MCP server", "transport", transport)
			err = srv.ServeStdio()
		case "sse":
			logger.Info("starting MCP server", "transport", transport, "addr", addr)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			err = srv.ServeSSE(ctx, addr)
			stop()
		default:
			err = fmt.Errorf("unknown transport %q (supported: stdio, sse)", transport)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := rt.Close(ctx); cerr != nil {
			logger.Error("failed to close runtime", "error", cerr)
		}
		if err != nil {
			logger.Error("MCP server execution failed", "error", err)
			os.Exit(1)
		}
		logger.Info("MCP server stopped")
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", "", "Address to listen on, SSE only (overrides server.mcp_addr)")
}
