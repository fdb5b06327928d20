package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcpcontext/browser/internal/scanner"
	"github.com/mcpcontext/browser/internal/search"
)

func newSearchCmd() *cobra.Command {
	var path string
	var limit int
	var ext string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid search over an indexed repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, path, args[0], limit, ext)
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "repository root to search")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	cmd.Flags().StringVar(&ext, "ext", "", "restrict results to one file extension")
	return cmd
}

func runSearch(cmd *cobra.Command, path, query string, limit int, ext string) error {
	ctx := cmd.Context()
	registry := newRegistry()

	col, err := registry.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open collection: %w", err)
	}

	opts := search.SearchOptions{Limit: limit}
	if ext != "" {
		// Chunks carry the scanner's language name ("typescript" for ".ts").
		ext = strings.TrimPrefix(ext, ".")
		opts.Language = ext
		if lang := scanner.DetectLanguage("f." + ext); lang != "" {
			opts.Language = lang
		}
	}

	results, err := col.Engine.Search(ctx, query, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}
	for i, r := range results {
		if r.Chunk == nil {
			continue
		}
		fmt.Fprintf(out, "%2d. %s:%d-%d  (score %.4f)\n", i+1, r.Chunk.FilePath, r.Chunk.StartLine, r.Chunk.EndLine, r.Score)
	}
	return nil
}
