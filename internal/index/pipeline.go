package index

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/mcpcontext/browser/internal/chunk"
	"github.com/mcpcontext/browser/internal/config"
	"github.com/mcpcontext/browser/internal/embedpipeline"
	"github.com/mcpcontext/browser/internal/errs"
	"github.com/mcpcontext/browser/internal/scanner"
	"github.com/mcpcontext/browser/internal/snapshot"
	"github.com/mcpcontext/browser/internal/store"
)

// maxBinaryProbeBytes is how much of a file's head is checked for NUL bytes
// before it is treated as binary and skipped.
const maxBinaryProbeBytes = 8192

// CollectionDeps are the stores and components a single collection's
// pipeline run is wired against. The coordinator builds one of these per
// collection and reuses it across runs.
type CollectionDeps struct {
	CollectionID string
	RootPath     string
	DataDir      string
	Config       *config.Config

	Metadata store.MetadataStore
	BM25     store.BM25Index
	Vector   store.VectorStore
	Embedder embedpipeline.Embedder

	CodeChunker chunk.Chunker
	MDChunker   chunk.Chunker

	// ContextGen, if non-nil, enriches chunks with generated context during
	// Chunking. Left nil, contextual enrichment never runs regardless of
	// Config.Contextual.Enabled.
	ContextGen ContextGenerator
}

// pipelineRun executes the seven Running phases for one request_index call
// against one collection, grounded on the teacher's Runner.Run staged
// execution (scan/chunk/context/embed/index), split so that Diffing and
// Deleting become explicit phases and progress is reported per phase rather
// than only at stage boundaries.
type pipelineRun struct {
	deps     CollectionDeps
	progress *Progress
}

func newPipelineRun(deps CollectionDeps, progress *Progress) *pipelineRun {
	return &pipelineRun{deps: deps, progress: progress}
}

// run executes all seven phases in order, aborting immediately on error or
// context cancellation. The manifest is committed last, so a failure at any
// earlier phase leaves the previous manifest (and therefore the previous
// diff baseline) untouched.
func (r *pipelineRun) run(ctx context.Context) (SucceededStats, error) {
	r.progress.SetPhase(PhaseDiscovering)
	files, err := r.discover(ctx)
	if err != nil {
		return SucceededStats{}, fmt.Errorf("discovering: %w", err)
	}
	r.progress.SetFilesTotal(len(files))

	r.progress.SetPhase(PhaseDiffing)
	prevManifest, err := snapshot.Load(r.deps.DataDir)
	if err != nil {
		return SucceededStats{}, fmt.Errorf("diffing: load manifest: %w", err)
	}
	curManifest, err := buildManifest(files)
	if err != nil {
		return SucceededStats{}, fmt.Errorf("diffing: hash files: %w", err)
	}
	diff := snapshot.Compare(prevManifest, curManifest)

	if err := ctx.Err(); err != nil {
		return SucceededStats{}, err
	}

	r.progress.SetPhase(PhaseDeleting)
	if err := r.delete(ctx, diff); err != nil {
		return SucceededStats{}, fmt.Errorf("deleting: %w", err)
	}

	changed := make([]*scanner.FileInfo, 0, len(diff.Added)+len(diff.Modified))
	byPath := make(map[string]*scanner.FileInfo, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}
	for _, p := range diff.Added {
		if f, ok := byPath[p]; ok {
			changed = append(changed, f)
		}
	}
	for _, p := range diff.Modified {
		if f, ok := byPath[p]; ok {
			changed = append(changed, f)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].Path < changed[j].Path })

	r.progress.SetPhase(PhaseChunking)
	chunks, err := r.chunkFiles(ctx, changed)
	if err != nil {
		return SucceededStats{}, fmt.Errorf("chunking: %w", err)
	}

	r.progress.SetPhase(PhaseEmbedding)
	vectors, err := r.embed(ctx, chunks)
	if err != nil {
		return SucceededStats{}, fmt.Errorf("embedding: %w", err)
	}

	r.progress.SetPhase(PhasePersisting)
	if err := r.persist(ctx, changed, chunks, vectors); err != nil {
		return SucceededStats{}, fmt.Errorf("persisting: %w", err)
	}
	r.progress.AddFilesDone(len(changed))

	r.progress.SetPhase(PhaseCommitting)
	if err := r.commit(ctx, curManifest); err != nil {
		return SucceededStats{}, fmt.Errorf("committing: %w", err)
	}

	return SucceededStats{Files: len(changed), Chunks: len(chunks)}, nil
}

// discover walks the collection root and returns every indexable file,
// applying the configured include/exclude patterns and .gitignore rules.
// It adds no size or binary filtering beyond the scanner's own; the NUL-byte
// binary check runs later, in chunkFiles.
func (r *pipelineRun) discover(ctx context.Context) ([]*scanner.FileInfo, error) {
	s, err := scanner.New()
	if err != nil {
		return nil, err
	}

	opts := &scanner.ScanOptions{
		RootDir:          r.deps.RootPath,
		IncludePatterns:  r.deps.Config.Paths.Include,
		ExcludePatterns:  r.deps.Config.Paths.Exclude,
		RespectGitignore: true,
		Submodules:       &r.deps.Config.Submodules,
	}

	results, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var files []*scanner.FileInfo
	for res := range results {
		if res.Error != nil {
			continue
		}
		files = append(files, res.File)
	}
	return files, ctx.Err()
}

// buildManifest hashes every discovered file's content once, producing the
// current-state manifest that Compare diffs against the prior one.
func buildManifest(files []*scanner.FileInfo) (*snapshot.Manifest, error) {
	m := snapshot.New()
	for _, f := range files {
		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Path, err)
		}
		m.Put(f.Path, snapshot.Entry{
			ContentHash: chunk.HashContent(content),
			Size:        f.Size,
			ModTime:     f.ModTime,
		})
	}
	return m, nil
}

// delete removes the prior chunks of every removed or modified path from
// all three stores, keyed by the stable (collection_id, relative_path) file
// ID the teacher's coordinator already derives.
func (r *pipelineRun) delete(ctx context.Context, diff snapshot.Diff) error {
	paths := make([]string, 0, len(diff.Removed)+len(diff.Modified))
	paths = append(paths, diff.Removed...)
	paths = append(paths, diff.Modified...)

	var chunkIDs []string
	for _, p := range paths {
		fileID := generateFileID(r.deps.CollectionID, p)
		existing, err := r.deps.Metadata.GetChunksByFile(ctx, fileID)
		if err != nil {
			return fmt.Errorf("lookup chunks for %s: %w", p, err)
		}
		for _, c := range existing {
			chunkIDs = append(chunkIDs, c.ID)
		}
		if err := r.deps.Metadata.DeleteChunksByFile(ctx, fileID); err != nil {
			return fmt.Errorf("delete metadata for %s: %w", p, err)
		}
		if err := r.deps.Metadata.DeleteFile(ctx, fileID); err != nil {
			return fmt.Errorf("delete file record for %s: %w", p, err)
		}
	}

	if len(chunkIDs) == 0 {
		return nil
	}
	if err := r.deps.BM25.Delete(ctx, chunkIDs); err != nil {
		return fmt.Errorf("delete from lexical index: %w", err)
	}
	if err := r.deps.Vector.Delete(ctx, chunkIDs); err != nil {
		return fmt.Errorf("delete from vector store: %w", err)
	}
	return nil
}

// chunkFiles splits every added or modified file into store.Chunk values,
// applying contextual enrichment when configured.
func (r *pipelineRun) chunkFiles(ctx context.Context, files []*scanner.FileInfo) ([]*store.Chunk, error) {
	var all []*store.Chunk

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Path, err)
		}
		if isBinaryContent(content) {
			continue
		}

		ch := r.deps.CodeChunker
		if f.ContentType == scanner.ContentTypeMarkdown {
			ch = r.deps.MDChunker
		}

		parsed, err := ch.Chunk(ctx, &chunk.FileInput{
			CollectionID: r.deps.CollectionID,
			Path:         f.Path,
			Content:      content,
			Language:     f.Language,
		})
		if err != nil {
			// Per-file parse errors are skipped, not fatal to the run.
			continue
		}

		storeChunks := make([]*store.Chunk, 0, len(parsed))
		for _, c := range parsed {
			storeChunks = append(storeChunks, convertChunk(c))
		}

		if r.deps.Config.Contextual.Enabled && r.deps.ContextGen != nil {
			r.enrichContext(ctx, storeChunks)
		}

		all = append(all, storeChunks...)
	}

	return all, nil
}

func (r *pipelineRun) enrichContext(ctx context.Context, chunks []*store.Chunk) {
	if !r.deps.ContextGen.Available(ctx) {
		return
	}
	if !r.deps.Config.Contextual.CodeChunks {
		code := chunks[:0:0]
		for _, c := range chunks {
			if c.ContentType == store.ContentTypeCode {
				continue
			}
			code = append(code, c)
		}
		chunks = code
	}
	for _, group := range GroupChunksByFile(chunks) {
		docContext := ExtractDocumentContext(group)
		generated, err := r.deps.ContextGen.GenerateBatch(ctx, group, docContext)
		if err != nil {
			continue
		}
		for i, c := range group {
			if i < len(generated) {
				EnrichChunkWithContext(c, generated[i])
			}
		}
	}
}

func convertChunk(c *chunk.Chunk) *store.Chunk {
	symbols := make([]*store.Symbol, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		symbols = append(symbols, &store.Symbol{
			Name:       s.Name,
			Type:       store.SymbolType(s.Type),
			StartLine:  s.StartLine,
			EndLine:    s.EndLine,
			Signature:  s.Signature,
			DocComment: s.DocComment,
		})
	}
	return &store.Chunk{
		ID:          c.ID,
		FileID:      generateFileID(c.CollectionID, c.FilePath),
		FilePath:    c.FilePath,
		Content:     c.Content,
		RawContent:  c.RawContent,
		Context:     c.Context,
		ContentType: store.ContentType(c.ContentType),
		Language:    c.Language,
		StartLine:   c.StartLine,
		EndLine:     c.EndLine,
		Symbols:     symbols,
		Metadata:    c.Metadata,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// embed batches chunk content through the Batcher, retrying transient
// embedder errors and failing fast on permanent ones, and checks that every
// batch's dimensions agree with the collection's committed dimensions.
func (r *pipelineRun) embed(ctx context.Context, chunks []*store.Chunk) (map[string][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	opts := embedpipeline.DefaultBatchOptions()
	if r.deps.Config.Contextual.BatchSize > 0 {
		opts.Size = r.deps.Config.Contextual.BatchSize
	}
	batcher := embedpipeline.NewBatcher(opts)

	results := make(map[string][]float32, len(chunks))
	retryCfg := embedpipeline.DefaultRetryConfig()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for batch := range batcher.Batches() {
			texts := make([]string, len(batch.Items))
			for i, item := range batch.Items {
				texts[i] = item.Text
			}

			var vectors [][]float32
			runErr := embedpipeline.Retry(ctx, retryCfg, embedpipeline.ClassifyByCode, func() error {
				v, embedErr := r.deps.Embedder.EmbedBatch(ctx, texts)
				if embedErr != nil {
					return embedErr
				}
				vectors = v
				return nil
			})
			if runErr != nil {
				errCh <- runErr
				return
			}

			if err := r.checkDimensions(ctx, vectors); err != nil {
				errCh <- err
				return
			}

			for i, item := range batch.Items {
				if i < len(vectors) {
					results[item.ID] = vectors[i]
				}
			}
			r.progress.AddChunksEmitted(len(batch.Items))
		}
	}()

	for _, c := range chunks {
		batcher.Submit(embedpipeline.Item{ID: c.ID, Text: c.Content})
	}
	batcher.Close()

	if err := <-errCh; err != nil {
		return nil, err
	}
	return results, nil
}

// checkDimensions verifies the embedder's current dimensions against the
// dimension recorded for this collection, if any. The first successful
// embedding in a collection's history defines that dimension; any later
// mismatch aborts the task with an errs.CodeDimensionMismatch error rather than writing
// vectors the store cannot compare against what is already indexed.
func (r *pipelineRun) checkDimensions(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	got := len(vectors[0])

	stored, err := r.deps.Metadata.GetState(ctx, store.StateKeyIndexDimension)
	if err != nil || stored == "" {
		return nil
	}
	var want int
	if _, scanErr := fmt.Sscanf(stored, "%d", &want); scanErr != nil {
		return nil
	}
	if want != got {
		return errs.New(errs.CodeDimensionMismatch,
			fmt.Sprintf("collection %s has %d-dimensional vectors, embedder produced %d", r.deps.CollectionID, want, got), nil)
	}
	return nil
}

// persist upserts chunk content into the lexical index, vectors into the
// vector store, and chunk/file metadata into the metadata store.
func (r *pipelineRun) persist(ctx context.Context, files []*scanner.FileInfo, chunks []*store.Chunk, vectors map[string][]float32) error {
	if len(files) > 0 {
		storeFiles := make([]*store.File, 0, len(files))
		for _, f := range files {
			content, err := os.ReadFile(f.AbsPath)
			if err != nil {
				return fmt.Errorf("read %s: %w", f.Path, err)
			}
			storeFiles = append(storeFiles, &store.File{
				ID:          generateFileID(r.deps.CollectionID, f.Path),
				ProjectID:   r.deps.CollectionID,
				Path:        f.Path,
				Size:        f.Size,
				ModTime:     f.ModTime,
				ContentHash: chunk.HashContent(content),
				Language:    f.Language,
				ContentType: string(f.ContentType),
			})
		}
		if err := r.deps.Metadata.SaveFiles(ctx, storeFiles); err != nil {
			return fmt.Errorf("save files: %w", err)
		}
	}

	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, 0, len(chunks))
	vecs := make([][]float32, 0, len(chunks))
	docs := make([]*store.Document, 0, len(chunks))
	for _, c := range chunks {
		v, ok := vectors[c.ID]
		if !ok {
			continue
		}
		ids = append(ids, c.ID)
		vecs = append(vecs, v)
		docs = append(docs, &store.Document{ID: c.ID, Content: c.Content})
	}

	if err := r.deps.BM25.Index(ctx, docs); err != nil {
		return fmt.Errorf("index lexical: %w", err)
	}
	if err := r.deps.Vector.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	if err := r.deps.Metadata.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}

	dim := fmt.Sprintf("%d", r.deps.Embedder.Dimensions())
	if err := r.deps.Metadata.SetState(ctx, store.StateKeyIndexDimension, dim); err != nil {
		return fmt.Errorf("store index dimension: %w", err)
	}
	if err := r.deps.Metadata.SetState(ctx, store.StateKeyIndexModel, r.deps.Embedder.ModelName()); err != nil {
		return fmt.Errorf("store index model: %w", err)
	}
	return nil
}

// commit holds the advisory commit lock while writing the new manifest, the
// final step of a successful run.
func (r *pipelineRun) commit(ctx context.Context, m *snapshot.Manifest) error {
	lock := newCommitLock(r.deps.DataDir)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return snapshot.Save(r.deps.DataDir, m)
}

func generateFileID(collectionID, path string) string {
	return chunk.GenerateID(collectionID, path, "", 0)
}

func isBinaryContent(content []byte) bool {
	n := len(content)
	if n > maxBinaryProbeBytes {
		n = maxBinaryProbeBytes
	}
	for i := 0; i < n; i++ {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
