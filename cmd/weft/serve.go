package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/cli"
	"github.com/aretw0/weft/internal/presentation/tui"
	weftHTTP "github.com/aretw0/weft/pkg/adapters/http"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the collaborative runtime server",
	Long: `Starts the runtime as an HTTP server. Clients open workspaces, send FBP
protocol messages and follow the broadcast stream over Server-Sent Events.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, err := setup(cmd, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		rt, err := cli.NewRuntime(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing weft: %v\n", err)
			os.Exit(1)
		}

		handler := weftHTTP.NewHandler(rt.Hub(),
			weftHTTP.WithLogger(logger),
			weftHTTP.WithVersion(strings.TrimSpace(weft.Version)),
			weftHTTP.WithMetrics(rt.MetricsHandler()),
			weftHTTP.WithStreamBuffer(cfg.Server.StreamBuffer),
		)
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			tui.PrintBanner(os.Stderr, strings.TrimSpace(weft.Version))
			logger.Info("server listening", "addr", srv.Addr, "store", cfg.Store.Backend)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		exitCode := 0
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server error", "error", err)
				exitCode = 1
			}
		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			// Streams never end on their own; Shutdown waits for them until the deadline.
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
				_ = srv.Close()
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.Close(ctx); err != nil {
			logger.Error("failed to close runtime", "error", err)
			exitCode = 1
		}
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		logger.Info("server stopped")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides server.addr)")
}
