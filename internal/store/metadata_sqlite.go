package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteMetadataStore implements MetadataStore over a single SQLite database
// holding projects, files, chunks, embeddings, and a generic state table.
// It shares the WAL-mode connection idiom used by SQLiteBM25Index so the
// metadata and lexical databases behave identically under concurrent access.
type SQLiteMetadataStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// NewSQLiteMetadataStore opens (creating if necessary) a metadata database at
// path. An empty path opens an in-memory database, used by tests.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	m := &SQLiteMetadataStore{db: db, path: path}
	if err := m.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return m, nil
}

func (m *SQLiteMetadataStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		root_path TEXT NOT NULL,
		project_type TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		file_count INTEGER NOT NULL DEFAULT 0,
		indexed_at DATETIME NOT NULL,
		version TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		mod_time DATETIME NOT NULL,
		content_hash TEXT NOT NULL,
		language TEXT NOT NULL,
		content_type TEXT NOT NULL,
		indexed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_project ON files(project_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_files_project_path ON files(project_id, path);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		file_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		content TEXT NOT NULL,
		raw_content TEXT NOT NULL,
		context TEXT NOT NULL,
		content_type TEXT NOT NULL,
		language TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		symbols_json TEXT NOT NULL,
		metadata_json TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);

	CREATE TABLE IF NOT EXISTS embeddings (
		chunk_id TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		model TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := m.db.Exec(schema)
	return err
}

func (m *SQLiteMetadataStore) SaveProject(_ context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.db.Exec(`
		INSERT INTO projects (id, name, root_path, project_type, chunk_count, file_count, indexed_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, root_path=excluded.root_path, project_type=excluded.project_type,
			chunk_count=excluded.chunk_count, file_count=excluded.file_count,
			indexed_at=excluded.indexed_at, version=excluded.version`,
		p.ID, p.Name, p.RootPath, p.ProjectType, p.ChunkCount, p.FileCount, p.IndexedAt, p.Version)
	return err
}

func (m *SQLiteMetadataStore) GetProject(_ context.Context, id string) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var p Project
	err := m.db.QueryRow(`SELECT id, name, root_path, project_type, chunk_count, file_count, indexed_at, version
		FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.RootPath, &p.ProjectType, &p.ChunkCount, &p.FileCount, &p.IndexedAt, &p.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *SQLiteMetadataStore) UpdateProjectStats(_ context.Context, id string, fileCount, chunkCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.db.Exec(`UPDATE projects SET file_count = ?, chunk_count = ? WHERE id = ?`, fileCount, chunkCount, id)
	return err
}

func (m *SQLiteMetadataStore) RefreshProjectStats(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var fileCount int
	if err := m.db.QueryRow(`SELECT COUNT(*) FROM files WHERE project_id = ?`, id).Scan(&fileCount); err != nil {
		return err
	}
	var chunkCount int
	if err := m.db.QueryRow(`
		SELECT COUNT(*) FROM chunks c JOIN files f ON c.file_id = f.id WHERE f.project_id = ?`, id).
		Scan(&chunkCount); err != nil {
		return err
	}
	_, err := m.db.Exec(`UPDATE projects SET file_count = ?, chunk_count = ?, indexed_at = ? WHERE id = ?`,
		fileCount, chunkCount, time.Now().UTC(), id)
	return err
}

func (m *SQLiteMetadataStore) SaveFiles(_ context.Context, files []*File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`
		INSERT INTO files (id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			size=excluded.size, mod_time=excluded.mod_time, content_hash=excluded.content_hash,
			language=excluded.language, content_type=excluded.content_type, indexed_at=excluded.indexed_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, f := range files {
		if _, err := stmt.Exec(f.ID, f.ProjectID, f.Path, f.Size, f.ModTime, f.ContentHash, f.Language, f.ContentType, f.IndexedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func scanFile(row interface{ Scan(...any) error }) (*File, error) {
	var f File
	if err := row.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Size, &f.ModTime, &f.ContentHash, &f.Language, &f.ContentType, &f.IndexedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (m *SQLiteMetadataStore) GetFileByPath(_ context.Context, projectID, path string) (*File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row := m.db.QueryRow(`
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ? AND path = ?`, projectID, path)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func (m *SQLiteMetadataStore) GetChangedFiles(_ context.Context, projectID string, since time.Time) ([]*File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, err := m.db.Query(`
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ? AND indexed_at > ? ORDER BY path`, projectID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (m *SQLiteMetadataStore) ListFiles(_ context.Context, projectID, cursor string, limit int) ([]*File, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	rows, err := m.db.Query(`
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ? AND path > ? ORDER BY path LIMIT ?`, projectID, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	var out []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].Path
	}
	return out, next, nil
}

func (m *SQLiteMetadataStore) GetFilePathsByProject(_ context.Context, projectID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, err := m.db.Query(`SELECT path FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (m *SQLiteMetadataStore) GetFilesForReconciliation(_ context.Context, projectID string) (map[string]*File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, err := m.db.Query(`
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]*File)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out[f.Path] = f
	}
	return out, rows.Err()
}

func (m *SQLiteMetadataStore) ListFilePathsUnder(_ context.Context, projectID, dirPrefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, err := m.db.Query(`SELECT path FROM files WHERE project_id = ? AND path LIKE ?`,
		projectID, strings.TrimSuffix(dirPrefix, "/")+"/%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (m *SQLiteMetadataStore) DeleteFile(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE file_id = ?)`, fileID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE id = ?`, fileID); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *SQLiteMetadataStore) DeleteFilesByProject(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`
		DELETE FROM embeddings WHERE chunk_id IN (
			SELECT c.id FROM chunks c JOIN files f ON c.file_id = f.id WHERE f.project_id = ?)`, projectID); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		DELETE FROM chunks WHERE file_id IN (SELECT id FROM files WHERE project_id = ?)`, projectID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *SQLiteMetadataStore) SaveChunks(_ context.Context, chunks []*Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`
		INSERT INTO chunks (id, file_id, file_path, content, raw_content, context, content_type, language,
			start_line, end_line, symbols_json, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_id=excluded.file_id, file_path=excluded.file_path, content=excluded.content,
			raw_content=excluded.raw_content, context=excluded.context, content_type=excluded.content_type,
			language=excluded.language, start_line=excluded.start_line, end_line=excluded.end_line,
			symbols_json=excluded.symbols_json, metadata_json=excluded.metadata_json, updated_at=excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range chunks {
		symbolsJSON, err := json.Marshal(c.Symbols)
		if err != nil {
			return fmt.Errorf("marshal symbols for chunk %s: %w", c.ID, err)
		}
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for chunk %s: %w", c.ID, err)
		}
		if _, err := stmt.Exec(c.ID, c.FileID, c.FilePath, c.Content, c.RawContent, c.Context, c.ContentType,
			c.Language, c.StartLine, c.EndLine, string(symbolsJSON), string(metaJSON), c.CreatedAt, c.UpdatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func scanChunk(row interface{ Scan(...any) error }) (*Chunk, error) {
	var c Chunk
	var symbolsJSON, metaJSON string
	if err := row.Scan(&c.ID, &c.FileID, &c.FilePath, &c.Content, &c.RawContent, &c.Context, &c.ContentType,
		&c.Language, &c.StartLine, &c.EndLine, &symbolsJSON, &metaJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(symbolsJSON), &c.Symbols); err != nil {
		return nil, fmt.Errorf("unmarshal symbols for chunk %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata for chunk %s: %w", c.ID, err)
	}
	return &c, nil
}

const chunkColumns = `id, file_id, file_path, content, raw_content, context, content_type, language,
	start_line, end_line, symbols_json, metadata_json, created_at, updated_at`

func (m *SQLiteMetadataStore) GetChunk(_ context.Context, id string) (*Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row := m.db.QueryRow(`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (m *SQLiteMetadataStore) GetChunks(_ context.Context, ids []string) ([]*Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := m.db.Query(`SELECT `+chunkColumns+` FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (m *SQLiteMetadataStore) GetChunksByFile(_ context.Context, fileID string) ([]*Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, err := m.db.Query(`SELECT `+chunkColumns+` FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (m *SQLiteMetadataStore) DeleteChunks(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM embeddings WHERE chunk_id IN (`+placeholders+`)`, args...); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM chunks WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *SQLiteMetadataStore) DeleteChunksByFile(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE file_id = ?)`, fileID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *SQLiteMetadataStore) SearchSymbols(_ context.Context, name string, limit int) ([]*Symbol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	rows, err := m.db.Query(`SELECT symbols_json FROM chunks WHERE symbols_json LIKE ? LIMIT ?`,
		"%\""+name+"%", limit*4)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Symbol
	for rows.Next() {
		var symbolsJSON string
		if err := rows.Scan(&symbolsJSON); err != nil {
			return nil, err
		}
		var symbols []*Symbol
		if err := json.Unmarshal([]byte(symbolsJSON), &symbols); err != nil {
			continue
		}
		for _, s := range symbols {
			if strings.Contains(strings.ToLower(s.Name), strings.ToLower(name)) {
				out = append(out, s)
				if len(out) >= limit {
					return out, nil
				}
			}
		}
	}
	return out, rows.Err()
}

func (m *SQLiteMetadataStore) GetState(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var value string
	err := m.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (m *SQLiteMetadataStore) SetState(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.db.Exec(`
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		v[i] = math.Float32frombits(bits)
	}
	return v
}

func (m *SQLiteMetadataStore) SaveChunkEmbeddings(_ context.Context, chunkIDs []string, embeddings [][]float32, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(chunkIDs) != len(embeddings) {
		return fmt.Errorf("chunkIDs and embeddings length mismatch: %d != %d", len(chunkIDs), len(embeddings))
	}
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`
		INSERT INTO embeddings (chunk_id, vector, model) VALUES (?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET vector = excluded.vector, model = excluded.model`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, id := range chunkIDs {
		if _, err := stmt.Exec(id, encodeVector(embeddings[i]), model); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *SQLiteMetadataStore) GetAllEmbeddings(_ context.Context) (map[string][]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, err := m.db.Query(`SELECT chunk_id, vector FROM embeddings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var buf []byte
		if err := rows.Scan(&id, &buf); err != nil {
			return nil, err
		}
		out[id] = decodeVector(buf)
	}
	return out, rows.Err()
}

func (m *SQLiteMetadataStore) GetEmbeddingStats(_ context.Context) (withEmbedding, withoutEmbedding int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err = m.db.QueryRow(`SELECT COUNT(*) FROM embeddings`).Scan(&withEmbedding); err != nil {
		return 0, 0, err
	}
	var totalChunks int
	if err = m.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&totalChunks); err != nil {
		return 0, 0, err
	}
	withoutEmbedding = totalChunks - withEmbedding
	return withEmbedding, withoutEmbedding, nil
}

func (m *SQLiteMetadataStore) SaveIndexCheckpoint(_ context.Context, stage string, total, embeddedCount int, embedderModel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	kv := map[string]string{
		StateKeyCheckpointStage:         stage,
		StateKeyCheckpointTotal:         fmt.Sprintf("%d", total),
		StateKeyCheckpointEmbedded:      fmt.Sprintf("%d", embeddedCount),
		StateKeyCheckpointTimestamp:     time.Now().UTC().Format(time.RFC3339),
		StateKeyCheckpointEmbedderModel: embedderModel,
	}
	for k, v := range kv {
		if _, err := tx.Exec(`
			INSERT INTO state (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *SQLiteMetadataStore) LoadIndexCheckpoint(ctx context.Context) (*IndexCheckpoint, error) {
	stage, err := m.GetState(ctx, StateKeyCheckpointStage)
	if err != nil {
		return nil, err
	}
	if stage == "" {
		return nil, nil
	}
	totalStr, _ := m.GetState(ctx, StateKeyCheckpointTotal)
	embeddedStr, _ := m.GetState(ctx, StateKeyCheckpointEmbedded)
	tsStr, _ := m.GetState(ctx, StateKeyCheckpointTimestamp)
	model, _ := m.GetState(ctx, StateKeyCheckpointEmbedderModel)

	var total, embedded int
	fmt.Sscanf(totalStr, "%d", &total)
	fmt.Sscanf(embeddedStr, "%d", &embedded)
	ts, _ := time.Parse(time.RFC3339, tsStr)

	return &IndexCheckpoint{
		Stage:         stage,
		Total:         total,
		EmbeddedCount: embedded,
		Timestamp:     ts,
		EmbedderModel: model,
	}, nil
}

func (m *SQLiteMetadataStore) ClearIndexCheckpoint(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.db.Exec(`DELETE FROM state WHERE key IN (?, ?, ?, ?, ?)`,
		StateKeyCheckpointStage, StateKeyCheckpointTotal, StateKeyCheckpointEmbedded,
		StateKeyCheckpointTimestamp, StateKeyCheckpointEmbedderModel)
	return err
}

func (m *SQLiteMetadataStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}
