package chunk

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CodeChunkerOptions configures the code chunker behavior
type CodeChunkerOptions struct {
	MaxBytes      int // Maximum raw-content bytes per chunk (default: DefaultMaxBytes)
	OverlapBytes  int // Overlap between chunks when splitting (default: DefaultOverlapBytes)
	MinMergeBytes int // Chunks smaller than this are folded into a neighbor (default: DefaultMinMergeBytes)
}

// CodeChunker implements AST-aware code chunking using tree-sitter
type CodeChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
	options   CodeChunkerOptions
}

// NewCodeChunker creates a new code chunker with default options
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a new code chunker with custom options
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	if opts.MaxBytes == 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.OverlapBytes == 0 {
		opts.OverlapBytes = DefaultOverlapBytes
	}
	if opts.MinMergeBytes == 0 {
		opts.MinMergeBytes = DefaultMinMergeBytes
	}

	registry := DefaultRegistry()
	return &CodeChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
		options:   opts,
	}
}

// Close releases chunker resources
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns file extensions this chunker handles
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// Chunk splits a file into semantic chunks
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}
	if IsBinaryContent(file.Content) {
		return nil, nil
	}

	// Check if language is supported
	_, supported := c.registry.GetByName(file.Language)
	if !supported {
		// Fall back to line-based chunking
		chunks, err := c.chunkByLines(file)
		if err != nil {
			return nil, err
		}
		return MergeTinyFragments(chunks, c.options.MinMergeBytes), nil
	}

	// Parse the file
	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		// Fall back to line-based chunking on parse error
		chunks, lineErr := c.chunkByLines(file)
		if lineErr != nil {
			return nil, lineErr
		}
		return MergeTinyFragments(chunks, c.options.MinMergeBytes), nil
	}

	// Extract context (package declaration, imports)
	fileContext := c.extractFileContext(tree, file.Content, file.Language)

	// Enrich context with file path marker for better embedding quality
	fileContext = c.enrichContextWithFilePath(file.Path, file.Language, fileContext)

	// Find symbol nodes (functions, classes, methods, types)
	symbolNodes := c.findSymbolNodes(tree, file.Language)

	if len(symbolNodes) == 0 {
		return nil, nil
	}

	// Create chunks from symbol nodes
	chunks := make([]*Chunk, 0, len(symbolNodes))
	now := time.Now()

	for _, node := range symbolNodes {
		nodeChunks := c.createChunksFromNode(node, tree, file, fileContext, now)
		chunks = append(chunks, nodeChunks...)
	}

	return chunks, nil
}

// symbolNodeInfo holds a symbol node with its extracted symbol info
type symbolNodeInfo struct {
	node   *Node
	symbol *Symbol
}

// findSymbolNodes finds all top-level symbol-defining nodes
func (c *CodeChunker) findSymbolNodes(tree *Tree, language string) []*symbolNodeInfo {
	// Return empty slice, not nil, for consistent API behavior (DEBT-012)
	config, ok := c.registry.GetByName(language)
	if !ok {
		return []*symbolNodeInfo{}
	}

	var symbolNodes []*symbolNodeInfo

	// Build set of symbol-defining node types
	symbolTypes := make(map[string]SymbolType)
	for _, t := range config.FunctionTypes {
		symbolTypes[t] = SymbolTypeFunction
	}
	for _, t := range config.MethodTypes {
		symbolTypes[t] = SymbolTypeMethod
	}
	for _, t := range config.ClassTypes {
		symbolTypes[t] = SymbolTypeClass
	}
	for _, t := range config.InterfaceTypes {
		symbolTypes[t] = SymbolTypeInterface
	}
	for _, t := range config.TypeDefTypes {
		symbolTypes[t] = SymbolTypeType
	}
	for _, t := range config.ConstantTypes {
		symbolTypes[t] = SymbolTypeConstant
	}
	for _, t := range config.VariableTypes {
		symbolTypes[t] = SymbolTypeVariable
	}

	// Walk tree to find symbol nodes
	tree.Root.Walk(func(n *Node) bool {
		// For JS/TS lexical_declaration/variable_declaration, check for arrow functions first
		// Arrow functions should be typed as Function, not Constant
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			sym := c.extractor.extractSpecialSymbol(n, tree.Source, language)
			if sym != nil {
				// It's an arrow function or function expression
				symbolNodes = append(symbolNodes, &symbolNodeInfo{
					node:   n,
					symbol: sym,
				})
				return true // Already handled, don't process as constant
			}
			// Not an arrow function - fall through to check as constant/variable
		}

		// Check if this is a symbol-defining node type
		if symType, isSymbol := symbolTypes[n.Type]; isSymbol {
			sym := c.extractSymbol(n, tree, symType, language)
			if sym != nil {
				symbolNodes = append(symbolNodes, &symbolNodeInfo{
					node:   n,
					symbol: sym,
				})
			}
		}
		return true
	})

	return symbolNodes
}

// extractSymbol extracts symbol info from a node
func (c *CodeChunker) extractSymbol(n *Node, tree *Tree, symType SymbolType, language string) *Symbol {
	config, _ := c.registry.GetByName(language)
	name := c.extractor.extractName(n, tree.Source, config, language)
	if name == "" {
		return nil
	}

	docComment := c.extractDocComment(n, tree.Source, language)

	return &Symbol{
		Name:       name,
		Type:       symType,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		DocComment: docComment,
	}
}

// extractDocComment extracts doc comment for a node, looking for multi-line comments
func (c *CodeChunker) extractDocComment(n *Node, source []byte, language string) string {
	// Find the start of the current line
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	// Look for comment on preceding lines
	if lineStart <= 1 {
		return ""
	}

	// Collect comment lines working backwards
	var commentLines []string
	pos := lineStart - 1 // Start before the newline

	for pos > 0 {
		// Find start of previous line
		prevLineEnd := pos
		pos--
		for pos > 0 && source[pos] != '\n' {
			pos--
		}
		prevLineStart := pos
		if pos > 0 {
			prevLineStart++ // Skip the newline
		}

		prevLine := strings.TrimSpace(string(source[prevLineStart:prevLineEnd]))

		// Check for single-line comments
		switch language {
		case "go", "typescript", "tsx", "javascript", "jsx":
			if strings.HasPrefix(prevLine, "//") {
				commentLines = append([]string{strings.TrimPrefix(prevLine, "//")}, commentLines...)
				continue
			}
		case "python":
			if strings.HasPrefix(prevLine, "#") {
				commentLines = append([]string{strings.TrimPrefix(prevLine, "#")}, commentLines...)
				continue
			}
		}

		// Stop if we hit a non-comment line (unless empty)
		if prevLine != "" {
			break
		}
	}

	if len(commentLines) == 0 {
		return ""
	}

	return strings.TrimSpace(strings.Join(commentLines, "\n"))
}

// createChunksFromNode creates one or more chunks from a symbol node
func (c *CodeChunker) createChunksFromNode(info *symbolNodeInfo, tree *Tree, file *FileInput, fileContext string, now time.Time) []*Chunk {
	node := info.node
	rawContent := string(tree.Source[node.StartByte:node.EndByte])

	// Include doc comment in raw content if it exists
	rawContentWithDoc := rawContent
	if info.symbol.DocComment != "" {
		// Find where the doc comment is in the source
		rawContentWithDoc = c.getRawContentWithDocComment(node, tree.Source, info.symbol.DocComment)
	}

	if len(rawContentWithDoc) <= c.options.MaxBytes {
		// Small enough to be a single chunk
		chunk := c.createChunk(file, rawContentWithDoc, fileContext, info.symbol, int(node.StartByte), now)
		return []*Chunk{chunk}
	}

	// Need to split large symbol. A symbol split this way can end with a
	// short trailing fragment (e.g. a closing-brace-only tail); fold those
	// into a neighbor so they never end up scoring as their own weak hit.
	return MergeTinyFragments(c.splitLargeSymbol(info, tree, file, fileContext, now), c.options.MinMergeBytes)
}

// getRawContentWithDocComment gets raw content including doc comment
func (c *CodeChunker) getRawContentWithDocComment(n *Node, source []byte, docComment string) string {
	// Find start of doc comment (before the node)
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	// Count back through comment lines
	docLines := strings.Count(docComment, "\n") + 1
	for i := 0; i < docLines && lineStart > 0; i++ {
		lineStart--
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
	}

	return string(source[lineStart:n.EndByte])
}

// splitLargeSymbol splits a large symbol into multiple chunks
func (c *CodeChunker) splitLargeSymbol(info *symbolNodeInfo, tree *Tree, file *FileInput, fileContext string, now time.Time) []*Chunk {
	node := info.node
	content := string(tree.Source[node.StartByte:node.EndByte])

	// Try to split at logical boundaries: class -> methods, anything else ->
	// direct-child statement blocks, before falling back to line windows.
	if info.symbol.Type == SymbolTypeClass {
		if methodChunks := c.splitClassByMethods(info, tree, file, fileContext, now); len(methodChunks) > 0 {
			return methodChunks
		}
	}
	if blockChunks := c.splitByBlocks(info, tree, file, fileContext, now); len(blockChunks) > 0 {
		return blockChunks
	}

	// Last resort: line-based splitting with overlap.
	return c.splitByLines(content, info.symbol, file, fileContext, now, int(node.StartPoint.Row)+1, int(node.StartByte))
}

// splitClassByMethods splits a class node into one chunk per method child,
// keyed off the language's MethodTypes node set. The teacher's version of
// this function was left as a stub returning nil; this walks the class
// node's children to find method-like descendants directly, since
// tree-sitter's class-body layout nests methods one or two levels under the
// class node rather than as direct children.
func (c *CodeChunker) splitClassByMethods(info *symbolNodeInfo, tree *Tree, file *FileInput, fileContext string, now time.Time) []*Chunk {
	config, ok := c.registry.GetByName(file.Language)
	if !ok || len(config.MethodTypes) == 0 {
		return nil
	}
	methodTypes := make(map[string]bool, len(config.MethodTypes))
	for _, t := range config.MethodTypes {
		methodTypes[t] = true
	}

	var methodNodes []*Node
	info.node.Walk(func(n *Node) bool {
		if n == info.node {
			return true
		}
		if methodTypes[n.Type] {
			methodNodes = append(methodNodes, n)
			return false // don't descend into a method's own body for further method nodes
		}
		return true
	})
	if len(methodNodes) == 0 {
		return nil
	}

	var chunks []*Chunk
	for _, mn := range methodNodes {
		raw := string(tree.Source[mn.StartByte:mn.EndByte])
		sym := c.extractSymbol(mn, tree, SymbolTypeMethod, file.Language)
		if sym == nil {
			sym = &Symbol{
				Name:      info.symbol.Name,
				Type:      SymbolTypeMethod,
				StartLine: int(mn.StartPoint.Row) + 1,
				EndLine:   int(mn.EndPoint.Row) + 1,
			}
		}
		if len(raw) <= c.options.MaxBytes {
			chunks = append(chunks, c.createChunk(file, raw, fileContext, sym, int(mn.StartByte), now))
			continue
		}
		chunks = append(chunks, c.splitByLines(raw, sym, file, fileContext, now, sym.StartLine, int(mn.StartByte))...)
	}
	return chunks
}

// splitByBlocks splits a non-class oversized symbol at its direct AST-child
// statement boundaries (e.g. a long function's top-level statements),
// falling through to line splitting when the node has no usable children
// or a single child still exceeds MaxBytes.
func (c *CodeChunker) splitByBlocks(info *symbolNodeInfo, tree *Tree, file *FileInput, fileContext string, now time.Time) []*Chunk {
	node := info.node
	if len(node.Children) < 2 {
		return nil
	}

	var chunks []*Chunk
	var groupStart, groupEnd uint32
	groupStart = node.StartByte
	groupEnd = node.StartByte
	flush := func() {
		if groupEnd <= groupStart {
			return
		}
		raw := string(tree.Source[groupStart:groupEnd])
		if strings.TrimSpace(raw) == "" {
			return
		}
		sub := &Symbol{
			Name:      fmt.Sprintf("%s_part%d", info.symbol.Name, len(chunks)+1),
			Type:      info.symbol.Type,
			StartLine: int(node.StartPoint.Row) + 1,
			EndLine:   int(node.EndPoint.Row) + 1,
		}
		if len(raw) > c.options.MaxBytes {
			chunks = append(chunks, c.splitByLines(raw, sub, file, fileContext, now, sub.StartLine, int(groupStart))...)
			return
		}
		chunks = append(chunks, c.createChunk(file, raw, fileContext, sub, int(groupStart), now))
	}

	for _, child := range node.Children {
		if child.EndByte-groupStart > uint32(c.options.MaxBytes) && groupEnd > groupStart {
			flush()
			groupStart = groupEnd
		}
		groupEnd = child.EndByte
	}
	flush()

	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) > 0 {
		chunks[0].Symbols = append(chunks[0].Symbols, info.symbol)
	}
	return chunks
}

// splitByLines splits content into line-based chunks with byte-budgeted
// overlap. startByte is the offset of content's first byte within the
// file, used so every produced chunk still gets a stable, byte-anchored ID.
func (c *CodeChunker) splitByLines(content string, symbol *Symbol, file *FileInput, fileContext string, now time.Time, startLine int, startByte int) []*Chunk {
	lines := strings.Split(content, "\n")
	// Return empty slice, not nil, for consistent API behavior (DEBT-012)
	if len(lines) == 0 {
		return []*Chunk{}
	}

	var chunks []*Chunk
	byteOffset := startByte
	for i := 0; i < len(lines); {
		end := i
		size := 0
		for end < len(lines) && (size == 0 || size+len(lines[end])+1 <= c.options.MaxBytes) {
			size += len(lines[end]) + 1
			end++
		}
		if end == i {
			end = i + 1 // a single line longer than MaxBytes still gets its own chunk
		}

		chunkContent := strings.Join(lines[i:end], "\n")
		chunkStartLine := startLine + i
		chunkEndLine := startLine + end - 1
		chunkStartByte := byteOffset

		// Create a sub-symbol for this chunk
		subSymbol := &Symbol{
			Name:      fmt.Sprintf("%s_part%d", symbol.Name, len(chunks)+1),
			Type:      symbol.Type,
			StartLine: chunkStartLine,
			EndLine:   chunkEndLine,
		}

		// For the first chunk, also register the parent symbol.
		// This ensures queries for "Search method" can find split symbols
		// that are stored as "Search_part1", "Search_part2", etc.
		// (See RCA-013: Split Symbol Discovery)
		symbols := []*Symbol{subSymbol}
		if len(chunks) == 0 {
			// Add parent symbol to first chunk for discoverability
			parentSymbol := &Symbol{
				Name:      symbol.Name,
				Type:      symbol.Type,
				StartLine: symbol.StartLine,
				EndLine:   symbol.EndLine,
			}
			symbols = append(symbols, parentSymbol)
		}

		contentHash := HashContent([]byte(chunkContent))
		chunk := &Chunk{
			ID:          GenerateID(file.CollectionID, file.Path, contentHash, chunkStartByte),
			CollectionID: file.CollectionID,
			FilePath:    file.Path,
			ContentHash: contentHash,
			Content:     combineContextAndContent(fileContext, chunkContent),
			RawContent:  chunkContent,
			Context:     fileContext,
			ContentType: ContentTypeCode,
			Language:    file.Language,
			StartLine:   chunkStartLine,
			EndLine:     chunkEndLine,
			StartByte:   chunkStartByte,
			EndByte:     chunkStartByte + len(chunkContent),
			Symbols:     symbols,
			Metadata:    make(map[string]string),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		chunks = append(chunks, chunk)

		// Move forward, accounting for overlap measured in bytes.
		overlapLines := 0
		overlapBytes := 0
		for j := end - 1; j > i && overlapBytes < c.options.OverlapBytes; j-- {
			overlapBytes += len(lines[j]) + 1
			overlapLines++
		}
		next := end - overlapLines
		if next <= i || end >= len(lines) {
			byteOffset += len(chunkContent) + 1
			break
		}
		byteOffset += len(strings.Join(lines[i:next], "\n")) + 1
		i = next
	}

	return chunks
}

// createChunk creates a single chunk from content. startByte is the offset
// of rawContent's first byte within the file, folded into the chunk's
// content-addressable ID alongside the file's content hash.
func (c *CodeChunker) createChunk(file *FileInput, rawContent, fileContext string, symbol *Symbol, startByte int, now time.Time) *Chunk {
	contentHash := HashContent([]byte(rawContent))
	return &Chunk{
		ID:          GenerateID(file.CollectionID, file.Path, contentHash, startByte),
		CollectionID: file.CollectionID,
		FilePath:    file.Path,
		ContentHash: contentHash,
		Content:     combineContextAndContent(fileContext, rawContent),
		RawContent:  rawContent,
		Context:     fileContext,
		ContentType: ContentTypeCode,
		Language:    file.Language,
		StartLine:   symbol.StartLine,
		EndLine:     symbol.EndLine,
		StartByte:   startByte,
		EndByte:     startByte + len(rawContent),
		Symbols:     []*Symbol{symbol},
		Metadata:    make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// extractFileContext extracts package declaration and imports from a file
func (c *CodeChunker) extractFileContext(tree *Tree, source []byte, language string) string {
	var parts []string

	switch language {
	case "go":
		parts = c.extractGoContext(tree, source)
	case "typescript", "tsx":
		parts = c.extractTSContext(tree, source)
	case "javascript", "jsx":
		parts = c.extractJSContext(tree, source)
	case "python":
		parts = c.extractPythonContext(tree, source)
	case "java":
		parts = c.extractJavaContext(tree, source)
	}

	return strings.Join(parts, "\n\n")
}

func (c *CodeChunker) extractJavaContext(tree *Tree, source []byte) []string {
	var parts []string

	for _, node := range tree.Root.Children {
		if node.Type == "package_declaration" {
			parts = append(parts, node.GetContent(source))
			break
		}
	}

	for _, node := range tree.Root.Children {
		if node.Type == "import_declaration" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

func (c *CodeChunker) extractGoContext(tree *Tree, source []byte) []string {
	var parts []string

	// Find package clause
	for _, node := range tree.Root.Children {
		if node.Type == "package_clause" {
			parts = append(parts, node.GetContent(source))
			break
		}
	}

	// Find import declarations
	for _, node := range tree.Root.Children {
		if node.Type == "import_declaration" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

func (c *CodeChunker) extractTSContext(tree *Tree, source []byte) []string {
	return c.extractJSContext(tree, source) // Same for TS/TSX
}

func (c *CodeChunker) extractJSContext(tree *Tree, source []byte) []string {
	var parts []string

	// Find import statements
	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

func (c *CodeChunker) extractPythonContext(tree *Tree, source []byte) []string {
	var parts []string

	// Find import statements
	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" || node.Type == "import_from_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

// chunkByLines is the fallback for unsupported languages, budgeting each
// chunk in raw bytes rather than a fixed line count.
func (c *CodeChunker) chunkByLines(file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	lines := strings.Split(content, "\n")
	var chunks []*Chunk
	now := time.Now()
	byteOffset := 0

	for i := 0; i < len(lines); {
		end := i
		size := 0
		for end < len(lines) && (size == 0 || size+len(lines[end])+1 <= c.options.MaxBytes) {
			size += len(lines[end]) + 1
			end++
		}
		if end == i {
			end = i + 1
		}

		chunkContent := strings.Join(lines[i:end], "\n")
		startLine := i + 1 // 1-indexed
		endLine := end     // Inclusive
		chunkStartByte := byteOffset
		contentHash := HashContent([]byte(chunkContent))

		chunk := &Chunk{
			ID:          GenerateID(file.CollectionID, file.Path, contentHash, chunkStartByte),
			CollectionID: file.CollectionID,
			FilePath:    file.Path,
			ContentHash: contentHash,
			Content:     chunkContent,
			RawContent:  chunkContent,
			Context:     "",
			ContentType: ContentTypeText,
			Language:    file.Language,
			StartLine:   startLine,
			EndLine:     endLine,
			StartByte:   chunkStartByte,
			EndByte:     chunkStartByte + len(chunkContent),
			Symbols:     nil,
			Metadata:    make(map[string]string),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		chunks = append(chunks, chunk)

		// Move forward, accounting for overlap measured in bytes.
		overlapLines := 0
		overlapBytes := 0
		for j := end - 1; j > i && overlapBytes < c.options.OverlapBytes; j-- {
			overlapBytes += len(lines[j]) + 1
			overlapLines++
		}
		next := end - overlapLines
		if next <= i || end >= len(lines) {
			break
		}
		byteOffset += len(strings.Join(lines[i:next], "\n")) + 1
		i = next
	}

	return chunks, nil
}

// combineContextAndContent combines context and raw content into full content
func combineContextAndContent(context, rawContent string) string {
	if context == "" {
		return rawContent
	}
	return context + "\n\n" + rawContent
}

// enrichContextWithFilePath prepends a file path marker to the context.
// This helps embedding models understand file location and scope.
// The marker format is language-appropriate (// for Go/JS/TS, # for Python).
func (c *CodeChunker) enrichContextWithFilePath(filePath, language, existingContext string) string {
	if filePath == "" {
		return existingContext
	}

	// Use language-appropriate comment syntax
	var marker string
	switch language {
	case "python":
		marker = fmt.Sprintf("# File: %s", filePath)
	default:
		// Go, TypeScript, JavaScript, etc. use //
		marker = fmt.Sprintf("// File: %s", filePath)
	}

	if existingContext == "" {
		return marker
	}
	return marker + "\n" + existingContext
}
