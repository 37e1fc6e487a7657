// Package vecindex implements a flat exhaustive vector index over procedure
// chunks. Corpora are document-scale (hundreds to low thousands of chunks),
// so brute-force L2 search is exact and fast enough; there is no ANN
// structure to tune or to drift out of sync.
package vecindex

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"regaudit/internal/types"
)

// Entry is one indexed chunk: its vector plus the citation metadata carried
// into search hits.
type Entry struct {
	SourceFile  string
	ChunkIndex  int
	ChunkHash   string
	Text        string
	StartOffset int
	EndOffset   int
	Vector      []float32
}

// Hit is one search result, ordered by descending score.
type Hit struct {
	Entry Entry
	Score float64
}

// Index is an immutable snapshot over one corpus build. Fingerprint and
// Model identify what the vectors were computed from; a persisted index
// whose identity no longer matches the corpus is rebuilt, never patched.
type Index struct {
	CorpusID    string
	Model       string
	Fingerprint string
	Dim         int
	Entries     []Entry
}

// Fingerprint derives the corpus identity from chunk hashes. Sorting makes
// it independent of ingestion order.
func Fingerprint(chunkHashes []string) string {
	sorted := make([]string, len(chunkHashes))
	copy(sorted, chunkHashes)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// Build constructs an index. All vectors must share one dimension; an empty
// corpus yields a valid empty index.
func Build(corpusID, model string, entries []Entry) (*Index, error) {
	idx := &Index{CorpusID: corpusID, Model: model, Entries: entries}

	hashes := make([]string, len(entries))
	for i, e := range entries {
		hashes[i] = e.ChunkHash
		if idx.Dim == 0 {
			idx.Dim = len(e.Vector)
		}
		if len(e.Vector) != idx.Dim {
			return nil, fmt.Errorf("%w: entry %d has dimension %d, index has %d",
				types.ErrInvalidation, i, len(e.Vector), idx.Dim)
		}
	}
	idx.Fingerprint = Fingerprint(hashes)
	return idx, nil
}

// Search returns the k nearest entries to query by L2 distance, scored as
// 1/(1+dist). k larger than the corpus is clamped; an empty index returns
// an empty result. Ordering is deterministic: descending score with
// insertion order breaking ties.
func (idx *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(idx.Entries) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != idx.Dim {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d",
			types.ErrInvalidation, len(query), idx.Dim)
	}
	if k > len(idx.Entries) {
		k = len(idx.Entries)
	}

	hits := make([]Hit, len(idx.Entries))
	for i, e := range idx.Entries {
		hits[i] = Hit{Entry: e, Score: 1.0 / (1.0 + l2(query, e.Vector))}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits[:k], nil
}

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Save writes the index artifact atomically (temp file + rename).
func (idx *Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(idx); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp index file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace index file: %w", err)
	}
	return nil
}

// Load reads a persisted index and validates it against the expected corpus
// fingerprint and embedding model. Any mismatch, or an unreadable artifact,
// returns ErrInvalidation so the caller rebuilds from scratch.
func Load(path, wantFingerprint, wantModel string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no index artifact at %s", types.ErrInvalidation, path)
		}
		return nil, fmt.Errorf("%w: opening index: %v", types.ErrInvalidation, err)
	}
	defer f.Close()

	var idx Index
	if err := gob.NewDecoder(f).Decode(&idx); err != nil {
		return nil, fmt.Errorf("%w: decoding index: %v", types.ErrInvalidation, err)
	}
	if idx.Fingerprint != wantFingerprint {
		return nil, fmt.Errorf("%w: corpus fingerprint changed", types.ErrInvalidation)
	}
	if idx.Model != wantModel {
		return nil, fmt.Errorf("%w: embedding model changed from %s to %s",
			types.ErrInvalidation, idx.Model, wantModel)
	}
	return &idx, nil
}
