// Package mcpserver is a thin adapter registering the four spec tools
// (index_codebase, search_code, get_indexing_status, clear_index) against
// github.com/modelcontextprotocol/go-sdk/mcp, the teacher's exact
// dependency (internal/mcp/server.go). All decision logic — queueing,
// status tracking, search ranking — lives in internal/index and
// internal/search; this package only resolves a path to a collection,
// marshals, and maps errors.
package mcpserver

import (
	"context"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpcontext/browser/internal/collection"
	"github.com/mcpcontext/browser/internal/errs"
	"github.com/mcpcontext/browser/internal/index"
	"github.com/mcpcontext/browser/internal/scanner"
	"github.com/mcpcontext/browser/internal/search"
	"github.com/mcpcontext/browser/pkg/contract"
	"github.com/mcpcontext/browser/pkg/version"
)

// Server wraps the MCP SDK server and a collection registry.
type Server struct {
	mcp      *mcp.Server
	registry *collection.Registry
}

// New creates a Server backed by registry, registering all four tools.
func New(registry *collection.Registry) *Server {
	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "ctxbrowser",
			Version: version.Version,
		}, nil),
		registry: registry,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_codebase",
		Description: "Index or re-index a repository for hybrid search. Queues a background run if one isn't already in flight for this path.",
	}, s.handleIndexCodebase)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: "Hybrid (BM25 + semantic) search over an indexed repository's code and docs.",
	}, s.handleSearchCode)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_indexing_status",
		Description: "Report the indexing state machine status for a repository: idle, queued, running, succeeded, or failed.",
	}, s.handleGetIndexingStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "clear_index",
		Description: "Delete a repository's vector collection, lexical index, and manifest.",
	}, s.handleClearIndex)
}

// Serve runs the server over stdio, the MCP protocol's required transport
// for this deployment (BUG-034 in the teacher's history: stdout must carry
// only JSON-RPC frames once this call starts).
func (s *Server) Serve(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) handleIndexCodebase(ctx context.Context, _ *mcp.CallToolRequest, in contract.IndexCodebaseInput) (
	*mcp.CallToolResult, contract.IndexCodebaseResult, error,
) {
	if in.Path == "" {
		return nil, contract.IndexCodebaseResult{}, errs.InvalidInput("path is required", nil)
	}

	col, err := s.registry.Open(ctx, in.Path)
	if err != nil {
		return nil, contract.IndexCodebaseResult{}, errs.Unavailable("open collection failed", err)
	}

	start := time.Now()
	result := s.registry.Coordinator.RequestIndex(ctx, col.Deps, index.IndexOptions{Force: in.Force})
	if !result.Queued {
		return nil, contract.IndexCodebaseResult{}, result.Rejection
	}

	for {
		snap := s.registry.Coordinator.Status(col.ID)
		if snap.Status.IsTerminal() {
			if snap.Status == index.StatusFailed && snap.Failed != nil {
				return nil, contract.IndexCodebaseResult{}, snap.Failed.Err
			}
			files, chunks := 0, 0
			if snap.Succeeded != nil {
				files, chunks = snap.Succeeded.Files, snap.Succeeded.Chunks
			}
			return nil, contract.IndexCodebaseResult{
				FilesIndexed:  files,
				ChunksCreated: chunks,
				DurationMS:    time.Since(start).Milliseconds(),
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, contract.IndexCodebaseResult{}, errs.Cancelled("index_codebase cancelled")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (s *Server) handleSearchCode(ctx context.Context, _ *mcp.CallToolRequest, in contract.SearchCodeInput) (
	*mcp.CallToolResult, contract.SearchCodeResult, error,
) {
	if in.Query == "" {
		return nil, contract.SearchCodeResult{}, errs.InvalidInput("query is required", nil)
	}

	col, err := s.registry.Open(ctx, in.Path)
	if err != nil {
		return nil, contract.SearchCodeResult{}, errs.Unavailable("open collection failed", err)
	}

	opts := search.SearchOptions{Limit: in.Limit}
	if in.ExtensionFilter != "" {
		// Chunks carry the scanner's language name ("typescript" for ".ts"),
		// so map the extension the same way before filtering.
		ext := strings.TrimPrefix(in.ExtensionFilter, ".")
		opts.Language = ext
		if lang := scanner.DetectLanguage("f." + ext); lang != "" {
			opts.Language = lang
		}
	}

	results, err := col.Engine.Search(ctx, in.Query, opts)
	if err != nil {
		return nil, contract.SearchCodeResult{}, err
	}

	out := make([]contract.SearchCodeResultItem, 0, len(results))
	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		out = append(out, contract.SearchCodeResultItem{
			Path:      r.Chunk.FilePath,
			LineStart: r.Chunk.StartLine,
			LineEnd:   r.Chunk.EndLine,
			Content:   r.Chunk.Content,
			Score:     r.Score,
		})
	}
	return nil, contract.SearchCodeResult{Results: out}, nil
}

func (s *Server) handleGetIndexingStatus(ctx context.Context, _ *mcp.CallToolRequest, in contract.GetIndexingStatusInput) (
	*mcp.CallToolResult, contract.IndexingStatus, error,
) {
	col, err := s.registry.Open(ctx, in.Path)
	if err != nil {
		return nil, contract.IndexingStatus{}, errs.NotFound("repository not indexed", err)
	}

	snap := s.registry.Coordinator.Status(col.ID)
	out := contract.IndexingStatus{Status: string(snap.Status)}
	switch {
	case snap.Running != nil:
		out.Phase = string(snap.Running.Phase)
		out.FilesTotal = snap.Running.FilesTotal
		out.FilesDone = snap.Running.FilesDone
		out.ChunksEmitted = snap.Running.ChunksEmitted
	case snap.Succeeded != nil:
		out.FilesIndexed = snap.Succeeded.Files
		out.ChunksCreated = snap.Succeeded.Chunks
		out.DurationMS = snap.Succeeded.Duration.Milliseconds()
	case snap.Failed != nil:
		out.ErrorMessage = snap.Failed.Err.Error()
		out.Cancelled = snap.Failed.Cancelled
	}
	return nil, out, nil
}

func (s *Server) handleClearIndex(ctx context.Context, _ *mcp.CallToolRequest, in contract.ClearIndexInput) (
	*mcp.CallToolResult, contract.ClearIndexResult, error,
) {
	col, err := s.registry.Open(ctx, in.Path)
	if err != nil {
		return nil, contract.ClearIndexResult{}, errs.Unavailable("open collection failed", err)
	}
	if err := s.registry.Coordinator.Clear(ctx, col.Deps); err != nil {
		return nil, contract.ClearIndexResult{}, err
	}
	return nil, contract.ClearIndexResult{OK: true}, nil
}
