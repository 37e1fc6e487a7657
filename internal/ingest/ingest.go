// Package ingest reads procedure documents and prepares them for retrieval:
// raw read, unicode/layout normalization, then token-budgeted chunking with
// byte offsets preserved for citation.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"regaudit/internal/types"
)

// RawDoc is one procedure document as read from disk. Hash is the SHA-256 of
// the raw bytes and serves as the document's identity for cache keys and
// index invalidation. A failed read yields a RawDoc with Err set; the caller
// continues with the remaining documents.
type RawDoc struct {
	Path    string
	Content string
	Hash    string
	Err     error
}

// Ingest reads the given procedure documents. Only .txt and .md files are
// supported; anything else is reported as an ingestion failure for that
// document, never an abort.
func Ingest(paths []string) []RawDoc {
	docs := make([]RawDoc, 0, len(paths))
	for _, p := range paths {
		docs = append(docs, readOne(p))
	}
	return docs
}

func readOne(path string) RawDoc {
	doc := RawDoc{Path: path}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".txt" && ext != ".md" {
		doc.Err = fmt.Errorf("%w: unsupported extension %q for %s", types.ErrIngestion, ext, path)
		return doc
	}

	data, err := os.ReadFile(path)
	if err != nil {
		doc.Err = fmt.Errorf("%w: reading %s: %v", types.ErrIngestion, path, err)
		return doc
	}

	sum := sha256.Sum256(data)
	doc.Content = string(data)
	doc.Hash = hex.EncodeToString(sum[:])
	return doc
}

// Fingerprint returns the doc hash plus mtime for invalidation records.
// The hash is authoritative; mtime is a cheap pre-check.
func Fingerprint(path string) (hash string, mtimeUnix int64, err error) {
	doc := readOne(path)
	if doc.Err != nil {
		return "", 0, doc.Err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("%w: stat %s: %v", types.ErrIngestion, path, err)
	}
	return doc.Hash, info.ModTime().Unix(), nil
}
