package chunk

import (
	"context"
	"time"
)

// Chunk size defaults, expressed in raw content bytes per SPEC_FULL.md's
// chunking.max_bytes / chunking.min_merge_bytes configuration (the teacher's
// token-count budgets and TokensPerChar approximation are dropped in favor
// of accounting in bytes directly).
const (
	DefaultMaxBytes       = 1500
	DefaultOverlapBytes   = 200
	DefaultMinMergeBytes  = 200
)

// ContentType represents the type of content in a chunk
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
)

// Chunk is a retrievable unit of content. ID is derived deterministically
// from (CollectionID, FilePath, ContentHash, StartByte) — see id.go — so a
// chunk whose byte span is unchanged keeps its ID across reindexes.
type Chunk struct {
	ID          string            // sha256(collection_id, file_path, content_hash, start_byte)[:16]
	CollectionID string
	FilePath    string            // Relative to project root
	ContentHash string            // sha256 of RawContent, hex
	Content     string            // Full content with context
	RawContent  string            // Just the symbol, no context (code only)
	Context     string            // Imports, package decl (code only)
	ContentType ContentType       // code, markdown, text
	Language    string            // go, typescript, python, etc.
	StartLine   int               // 1-indexed
	EndLine     int               // Inclusive
	StartByte   int               // 0-indexed, into the file's raw bytes
	EndByte     int
	Symbols     []*Symbol         // Functions, classes, etc.
	Metadata    map[string]string // Custom metadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FileInput is input for the Chunker interface
type FileInput struct {
	CollectionID string
	Path     string // Relative path
	Content  []byte // File content
	Language string // go, typescript, python, etc.
}

// Chunker is the interface for splitting files into chunks
type Chunker interface {
	// Chunk splits a file into semantic chunks
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)

	// SupportedExtensions returns file extensions this chunker handles
	SupportedExtensions() []string
}

// SymbolType represents the kind of code symbol
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeType      SymbolType = "type"
	SymbolTypeVariable  SymbolType = "variable"
	SymbolTypeConstant  SymbolType = "constant"
	SymbolTypeMethod    SymbolType = "method"
)

// Symbol represents a code symbol extracted from parsing
type Symbol struct {
	Name       string
	Type       SymbolType
	StartLine  int
	EndLine    int
	Signature  string
	DocComment string
}

// Tree represents a parsed AST
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node represents a node in the AST
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point represents a position in the source code
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// LanguageConfig holds configuration for a supported language
type LanguageConfig struct {
	Name       string
	Extensions []string

	// Node types that indicate function declarations
	FunctionTypes []string

	// Node types that indicate class/struct definitions
	ClassTypes []string

	// Node types that indicate interface definitions
	InterfaceTypes []string

	// Node types that indicate method definitions
	MethodTypes []string

	// Node types that indicate type definitions
	TypeDefTypes []string

	// Node types that indicate constant declarations
	ConstantTypes []string

	// Node types that indicate variable declarations
	VariableTypes []string

	// Node type for name identifier
	NameField string
}
