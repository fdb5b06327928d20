package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpcontext/browser/internal/index"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a repository for hybrid search",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			return runIndex(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "cancel any running index and start a fresh one")
	return cmd
}

func runIndex(cmd *cobra.Command, path string, force bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	registry := newRegistry()

	col, err := registry.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open collection: %w", err)
	}

	result := registry.Coordinator.RequestIndex(ctx, col.Deps, index.IndexOptions{Force: force})
	if !result.Queued {
		return result.Rejection
	}

	start := time.Now()
	for {
		snap := registry.Coordinator.Status(col.ID)
		if snap.Status.IsTerminal() {
			if snap.Status == index.StatusFailed && snap.Failed != nil {
				return snap.Failed.Err
			}
			files, chunks := 0, 0
			if snap.Succeeded != nil {
				files, chunks = snap.Succeeded.Files, snap.Succeeded.Chunks
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files, %d chunks in %s\n", files, chunks, time.Since(start).Round(time.Millisecond))
			return nil
		}
		if snap.Running != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "\r%s: %d/%d files, %d chunks", snap.Running.Phase, snap.Running.FilesDone, snap.Running.FilesTotal, snap.Running.ChunksEmitted)
		}
		select {
		case <-ctx.Done():
			registry.Coordinator.Cancel(col.ID)
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}
