// Package contract holds the public Go types shared between the core
// (internal/index, internal/search) and its interface adapters: the MCP
// tool dispatcher in internal/mcpserver and the cobra CLI in
// cmd/ctxbrowser/cmd. It mirrors spec.md §6's tool table exactly — one
// struct pair per tool — plus the tool-facing error shape from §7.
package contract

import "github.com/mcpcontext/browser/internal/errs"

// IndexCodebaseInput is the index_codebase tool's input.
type IndexCodebaseInput struct {
	Path           string   `json:"path" jsonschema:"absolute path to the repository root"`
	Force          bool     `json:"force,omitempty" jsonschema:"cancel any running index for this path and start a fresh one"`
	Extensions     []string `json:"extensions,omitempty" jsonschema:"restrict indexing to these file extensions, e.g. go,ts"`
	IgnorePatterns []string `json:"ignore_patterns,omitempty" jsonschema:"additional gitignore-style patterns to exclude"`
}

// IndexCodebaseResult is the index_codebase tool's result.
type IndexCodebaseResult struct {
	FilesIndexed  int   `json:"files_indexed"`
	ChunksCreated int   `json:"chunks_created"`
	DurationMS    int64 `json:"duration_ms"`
}

// SearchCodeInput is the search_code tool's input.
type SearchCodeInput struct {
	Path            string `json:"path" jsonschema:"absolute path to the repository root"`
	Query           string `json:"query" jsonschema:"natural-language or keyword search query"`
	Limit           int    `json:"limit,omitempty" jsonschema:"maximum results, default 10, max 50"`
	ExtensionFilter string `json:"extension_filter,omitempty" jsonschema:"restrict results to one file extension"`
}

// SearchCodeResultItem is a single search_code hit.
type SearchCodeResultItem struct {
	Path      string  `json:"path"`
	LineStart int     `json:"line_start"`
	LineEnd   int     `json:"line_end"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
}

// SearchCodeResult is the search_code tool's result: an ordered list of
// hits, sorted by fused score descending.
type SearchCodeResult struct {
	Results []SearchCodeResultItem `json:"results"`
}

// GetIndexingStatusInput is the get_indexing_status tool's input.
type GetIndexingStatusInput struct {
	Path string `json:"path" jsonschema:"absolute path to the repository root"`
}

// IndexingStatus mirrors internal/index.Snapshot at the tool boundary.
type IndexingStatus struct {
	Status         string `json:"status"`
	Phase          string `json:"phase,omitempty"`
	FilesTotal     int    `json:"files_total,omitempty"`
	FilesDone      int    `json:"files_done,omitempty"`
	ChunksEmitted  int    `json:"chunks_emitted,omitempty"`
	FilesIndexed   int    `json:"files_indexed,omitempty"`
	ChunksCreated  int    `json:"chunks_created,omitempty"`
	DurationMS     int64  `json:"duration_ms,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	Cancelled      bool   `json:"cancelled,omitempty"`
}

// ClearIndexInput is the clear_index tool's input.
type ClearIndexInput struct {
	Path string `json:"path" jsonschema:"absolute path to the repository root"`
}

// ClearIndexResult is the clear_index tool's result.
type ClearIndexResult struct {
	OK bool `json:"ok"`
}

// ToolError is the tool-facing error shape from spec.md §7: every error
// surfaced across the tool boundary is one of these, never a bare string.
// It is an alias of errs.ToolError so internal/mcpserver can return the
// same value it gets from errs.ToToolError without a conversion step.
type ToolError = errs.ToolError
