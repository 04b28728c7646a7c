// Package memory provides the persistent vector store that maps
// (namespace, key) to content with an embedding, and serves nearest-neighbor
// search over it. Entries are shared across runs and never mutated in place:
// Put atomically replaces the whole record.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ikoma-ai/ikoma/internal/config"
)

// ErrNotFound is returned when a (namespace, key) entry does not exist.
var ErrNotFound = errors.New("memory entry not found")

// Embedder produces one embedding per text. Batching is deliberately not
// part of the interface; the underlying provider may not support it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Metadata is the free-form annotation attached to an entry.
type Metadata struct {
	SchemaVersion int     `json:"schema_version"`
	Context       string  `json:"context,omitempty"`
	PlanContext   string  `json:"plan_context,omitempty"`
	Reflection    string  `json:"reflection,omitempty"`
	QualityScore  float64 `json:"quality_score,omitempty"`
	URL           string  `json:"url,omitempty"`
	Title         string  `json:"title,omitempty"`
	ChunkIndex    int     `json:"chunk_index,omitempty"`
}

// Entry is one stored document.
type Entry struct {
	Namespace []string  `json:"namespace"`
	Key       string    `json:"key"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchResult pairs an entry with its distance so callers can threshold.
type SearchResult struct {
	Entry    Entry
	Distance float64
}

// Store is the SQLite-backed vector memory.
type Store struct {
	db       *sql.DB
	embedder Embedder
}

var (
	storesMu sync.Mutex
	stores   = map[string]*Store{}
)

// Open returns the process-wide store for the given database path. The
// special path ":memory:" always returns a fresh store.
func Open(dbPath string, embedder Embedder) (*Store, error) {
	if dbPath == ":memory:" {
		return open(dbPath, embedder)
	}

	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("resolve vector store path: %w", err)
	}

	storesMu.Lock()
	defer storesMu.Unlock()

	if s, ok := stores[abs]; ok {
		return s, nil
	}
	s, err := open(abs, embedder)
	if err != nil {
		return nil, err
	}
	stores[abs] = s
	return s, nil
}

func open(dbPath string, embedder Embedder) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create vector store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		doc_key    TEXT PRIMARY KEY,
		namespace  TEXT NOT NULL,
		entry_key  TEXT NOT NULL,
		content    TEXT NOT NULL,
		embedding  BLOB,
		metadata   TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_namespace ON documents(namespace);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init vector store schema: %w", err)
	}

	return &Store{db: db, embedder: embedder}, nil
}

// docKey joins the namespace tuple and key into the storage key.
func docKey(namespace []string, key string) string {
	return strings.Join(namespace, "-") + "-" + key
}

func nsKey(namespace []string) string {
	return strings.Join(namespace, "-")
}

// Put upserts an entry, embedding its content. The write is atomic: the
// entry is either fully present or absent.
func (s *Store) Put(ctx context.Context, namespace []string, key string, content string, meta Metadata) error {
	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed content: %w", err)
	}

	meta.SchemaVersion = config.MemorySchemaVersion
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO documents (doc_key, namespace, entry_key, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_key) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			created_at = excluded.created_at`,
		docKey(namespace, key), nsKey(namespace), key, content,
		float32SliceToBytes(embedding), string(metaJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put memory entry: %w", err)
	}
	return nil
}

// Get returns the entry for (namespace, key).
func (s *Store) Get(ctx context.Context, namespace []string, key string) (*Entry, error) {
	row := s.db.QueryRow(
		"SELECT namespace, entry_key, content, embedding, metadata, created_at FROM documents WHERE doc_key = ?",
		docKey(namespace, key),
	)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, nsKey(namespace), key)
		}
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s/%s (unreadable schema version)", ErrNotFound, nsKey(namespace), key)
	}
	return entry, nil
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (s *Store) Delete(ctx context.Context, namespace []string, key string) error {
	if _, err := s.db.Exec("DELETE FROM documents WHERE doc_key = ?", docKey(namespace, key)); err != nil {
		return fmt.Errorf("delete memory entry: %w", err)
	}
	return nil
}

// List returns up to limit entries in a namespace, newest first.
func (s *Store) List(ctx context.Context, namespace []string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		"SELECT namespace, entry_key, content, embedding, metadata, created_at FROM documents WHERE namespace = ? ORDER BY created_at DESC LIMIT ?",
		nsKey(namespace), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list memory entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue // unknown schema version
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

// Search embeds the query and returns up to limit entries in the namespace
// ordered by ascending cosine distance. No re-ranking is applied.
func (s *Store) Search(ctx context.Context, namespace []string, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = config.DefaultRetrieveLimit
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.db.Query(
		"SELECT namespace, entry_key, content, embedding, metadata, created_at FROM documents WHERE namespace = ? AND embedding IS NOT NULL",
		nsKey(namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("query memory entries: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if entry == nil || len(entry.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(queryVec, entry.Embedding)
		results = append(results, SearchResult{Entry: *entry, Distance: 1 - float64(sim)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	storesMu.Lock()
	for k, v := range stores {
		if v == s {
			delete(stores, k)
		}
	}
	storesMu.Unlock()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry decodes one row. Entries with an unknown schema version return
// (nil, nil) so readers skip them.
func scanEntry(row rowScanner) (*Entry, error) {
	var ns, key, content, metaJSON, createdAt string
	var embedding []byte
	if err := row.Scan(&ns, &key, &content, &embedding, &metaJSON, &createdAt); err != nil {
		return nil, err
	}

	var meta Metadata
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if meta.SchemaVersion > config.MemorySchemaVersion {
		slog.Debug("skipping memory entry with unknown schema version",
			"key", key, "version", meta.SchemaVersion)
		return nil, nil
	}

	entry := &Entry{
		Namespace: strings.Split(ns, "-"),
		Key:       key,
		Content:   content,
		Embedding: bytesToFloat32Slice(embedding),
		Metadata:  meta,
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		entry.CreatedAt = t
	}
	return entry, nil
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Mismatched or empty vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
