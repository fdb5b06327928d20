package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mcpcontext/browser/internal/mcpserver"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Run the index_codebase, search_code, get_indexing_status, and clear_index
tools as an MCP server over stdio, for use by AI coding assistants.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090 (disabled if empty)")
	return cmd
}

func runServe(cmd *cobra.Command, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := newRegistry()
	defer registry.Close()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server exited", slog.String("error", err.Error()))
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	server := mcpserver.New(registry)
	return server.Serve(ctx)
}
