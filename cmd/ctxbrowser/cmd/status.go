package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report the indexing status of a repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, path)
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "repository root to check")
	return cmd
}

func runStatus(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	registry := newRegistry()

	col, err := registry.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open collection: %w", err)
	}

	snap := registry.Coordinator.Status(col.ID)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "collection: %s\nroot:       %s\nstatus:     %s\n", col.ID, col.Root, snap.Status)

	switch {
	case snap.Running != nil:
		fmt.Fprintf(out, "phase:      %s\nfiles:      %d/%d\nchunks:     %d\n",
			snap.Running.Phase, snap.Running.FilesDone, snap.Running.FilesTotal, snap.Running.ChunksEmitted)
	case snap.Succeeded != nil:
		fmt.Fprintf(out, "files:      %d\nchunks:     %d\nduration:   %s\n",
			snap.Succeeded.Files, snap.Succeeded.Chunks, snap.Succeeded.Duration)
	case snap.Failed != nil:
		fmt.Fprintf(out, "error:      %s\ncancelled:  %t\n", snap.Failed.Err, snap.Failed.Cancelled)
	}

	stats := col.Engine.Stats()
	fmt.Fprintf(out, "vectors:    %d\n", stats.VectorCount)
	if stats.BM25Stats != nil {
		fmt.Fprintf(out, "documents:  %d\n", stats.BM25Stats.DocumentCount)
	}
	return nil
}
