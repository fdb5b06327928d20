// Package cmd provides the ctxbrowser CLI: thin cobra commands delegating
// into internal/collection, internal/index, and internal/search. All
// decision logic lives in those packages; these commands only resolve a
// path, call through the registry, and print the result.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpcontext/browser/internal/collection"
	"github.com/mcpcontext/browser/internal/telemetry"
	"github.com/mcpcontext/browser/pkg/version"
)

var debugMode bool

// NewRootCmd creates the root command for the ctxbrowser CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctxbrowser",
		Short: "Local-first hybrid (BM25 + semantic) code search",
		Long: `ctxbrowser indexes a repository into a lexical and a vector store and
serves hybrid search over it, either directly from the CLI or as an MCP
server for AI coding assistants.

It runs entirely locally; no data leaves the machine unless an embedding
provider is explicitly configured to call out to one.`,
		Version:       version.Version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if debugMode {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.SetVersionTemplate("ctxbrowser version {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// newRegistry builds the shared collection registry used by every command,
// backed by process-global Prometheus metrics (scraped by the serve
// command's metrics endpoint; CLI one-shot commands register the same
// instruments but nothing ever scrapes them).
func newRegistry() *collection.Registry {
	return collection.NewRegistry(0, telemetry.New("ctxbrowser"))
}
