package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpcontext/browser/internal/breaker"
	"github.com/mcpcontext/browser/internal/errs"
)

const doctorProbeInterval = 100 * time.Millisecond

func newDoctorCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Probe the embedder, vector store, and lexical index for a repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, path)
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "repository root to check")
	return cmd
}

func runDoctor(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	registry := newRegistry()

	col, err := registry.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open collection: %w", err)
	}

	monitor := breaker.NewMonitor(doctorProbeInterval)
	monitor.Register("embedder", func(ctx context.Context) error {
		if !col.Deps.Embedder.Available(ctx) {
			return errs.Unavailable(fmt.Sprintf("embedder %q unavailable", col.Deps.Embedder.ModelName()), nil)
		}
		return nil
	})
	monitor.Register("vector_store", func(ctx context.Context) error {
		_ = col.Deps.Vector.AllIDs()
		return nil
	})
	monitor.Register("lexical_index", func(ctx context.Context) error {
		_, err := col.Deps.BM25.AllIDs()
		return err
	})

	monitor.Start(ctx)
	time.Sleep(2 * doctorProbeInterval)
	monitor.Stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "collection: %s\nroot:       %s\n\n", col.ID, col.Root)

	ok := true
	for _, name := range []string{"embedder", "vector_store", "lexical_index"} {
		status := "ok"
		if !monitor.Healthy(name) {
			status = "FAILED"
			ok = false
		}
		fmt.Fprintf(out, "%-16s %s\n", name, status)
	}

	fmt.Fprintf(out, "embedding model: %s (%d dims)\n", col.Deps.Embedder.ModelName(), col.Deps.Embedder.Dimensions())

	if !ok {
		return errs.Unavailable("one or more health checks failed", nil)
	}
	return nil
}
