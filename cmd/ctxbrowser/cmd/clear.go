package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete a repository's vector collection, lexical index, and manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd, path)
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "repository root to clear")
	return cmd
}

func runClear(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	registry := newRegistry()

	col, err := registry.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open collection: %w", err)
	}

	if err := registry.Coordinator.Clear(ctx, col.Deps); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "cleared collection %s\n", col.ID)
	return nil
}
