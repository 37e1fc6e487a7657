// Package cache provides the global content-addressed result store. Keys
// are SHA-256 digests over everything that determines a computed value
// (content hash, stage, model, tunables), so a hit is exact or absent —
// never approximate. The store is shared across projects and has no
// eviction; Clear is the only removal path.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Kinds partition cache entries for stats and selective clearing.
const (
	KindEmbedding = "embedding"
	KindJSON      = "json"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	key        TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	payload    BLOB NOT NULL,
	model      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_cache_kind ON cache(kind);
`

// ContentCache is the SQLite-backed store. Safe for concurrent use; writes
// are durable before Put returns.
type ContentCache struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the cache database at path.
func Open(path string) (*ContentCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return &ContentCache{db: db, path: path}, nil
}

// DefaultPath returns the cache database location under the user cache dir.
func DefaultPath() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "regaudit", "cache.db")
}

// Close closes the underlying database.
func (c *ContentCache) Close() error {
	return c.db.Close()
}

// Key derives the cache key for a computed value from everything that
// determines it. Parts are joined with an unambiguous separator before
// hashing so ("ab","c") and ("a","bc") never collide.
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:])
}

// GetEmbedding looks up a cached embedding vector. A miss, a read error,
// or a corrupt payload all return (nil, false): the cache degrades to cold,
// it never serves a wrong value.
func (c *ContentCache) GetEmbedding(ctx context.Context, key string) ([]float32, bool) {
	payload, ok := c.get(ctx, key)
	if !ok {
		return nil, false
	}
	vec, err := decodeVector(payload)
	if err != nil {
		slog.Warn("discarding corrupt cached embedding", "key", key, "error", err)
		return nil, false
	}
	return vec, true
}

// PutEmbedding stores an embedding vector. The write is synchronous.
func (c *ContentCache) PutEmbedding(ctx context.Context, key, model string, vec []float32) error {
	return c.put(ctx, key, KindEmbedding, model, encodeVector(vec))
}

// GetJSON looks up a cached LLM payload and unmarshals it into out.
// Corrupt entries are treated as absent.
func (c *ContentCache) GetJSON(ctx context.Context, key string, out any) bool {
	payload, ok := c.get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, out); err != nil {
		slog.Warn("discarding corrupt cached payload", "key", key, "error", err)
		return false
	}
	return true
}

// PutJSON stores a JSON-marshalable LLM payload.
func (c *ContentCache) PutJSON(ctx context.Context, key, model string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache payload: %w", err)
	}
	return c.put(ctx, key, KindJSON, model, payload)
}

func (c *ContentCache) get(ctx context.Context, key string) ([]byte, bool) {
	var payload []byte
	err := c.db.QueryRowContext(ctx, "SELECT payload FROM cache WHERE key = ?", key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		slog.Warn("cache read failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return payload, true
}

func (c *ContentCache) put(ctx context.Context, key, kind, model string, payload []byte) error {
	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache (key, kind, payload, model, created_at) VALUES (?, ?, ?, ?, ?)",
		key, kind, payload, model, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Clear removes all entries of the given kind, or everything when kind is
// empty. Returns the number of entries removed.
func (c *ContentCache) Clear(ctx context.Context, kind string) (int64, error) {
	var res sql.Result
	var err error
	if kind == "" {
		res, err = c.db.ExecContext(ctx, "DELETE FROM cache")
	} else {
		res, err = c.db.ExecContext(ctx, "DELETE FROM cache WHERE kind = ?", kind)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	return res.RowsAffected()
}

// Stats summarizes entry counts and payload bytes per kind.
type Stats struct {
	Path    string
	Entries map[string]int64
	Bytes   map[string]int64
}

// Stats reports cache contents grouped by kind.
func (c *ContentCache) Stats(ctx context.Context) (Stats, error) {
	s := Stats{Path: c.path, Entries: map[string]int64{}, Bytes: map[string]int64{}}
	rows, err := c.db.QueryContext(ctx,
		"SELECT kind, COUNT(*), COALESCE(SUM(LENGTH(payload)), 0) FROM cache GROUP BY kind")
	if err != nil {
		return s, fmt.Errorf("failed to query cache stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count, bytes int64
		if err := rows.Scan(&kind, &count, &bytes); err != nil {
			return s, fmt.Errorf("failed to scan cache stats: %w", err)
		}
		s.Entries[kind] = count
		s.Bytes[kind] = bytes
	}
	return s, rows.Err()
}

// Embeddings are stored as little-endian float32 bits with no framing
// beyond the payload length, which must be a multiple of 4.

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding payload length %d not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
