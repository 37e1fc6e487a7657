package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"regaudit/internal/cache"
	"regaudit/internal/events"
	"regaudit/internal/ingest"
	"regaudit/internal/runstate"
	"regaudit/internal/types"
	"regaudit/internal/vecindex"
)

// runSearch prepares the procedure corpus (ingest → chunk → embed → index)
// and retrieves top-K evidence for every planned audit task. The index
// artifact is reused across runs as long as the corpus fingerprint and
// embedding model still match; otherwise it is rebuilt from scratch, with
// unchanged chunks coming out of the embedding cache.
func (r *Runner) runSearch(ctx context.Context) error {
	idx, err := r.prepareIndex(ctx)
	if err != nil {
		return err
	}

	pick := func(c *types.Clause) bool {
		return c.State == types.StatePlanned
	}
	return r.forEachClause(ctx, pick, func(ctx context.Context, id string) error {
		return r.searchOne(ctx, id, idx)
	})
}

// prepareIndex returns a ready vector index for the project corpus.
func (r *Runner) prepareIndex(ctx context.Context) (*vecindex.Index, error) {
	chunks, fingerprints := r.ingestCorpus()

	hashes := make([]string, len(chunks))
	for i, ch := range chunks {
		hashes[i] = ch.ContentHash
	}
	fingerprint := vecindex.Fingerprint(hashes)
	model := r.settings.EmbeddingModel

	if idx, err := vecindex.Load(r.project.IndexPath(), fingerprint, model); err == nil {
		r.progress(events.Info(events.EventIndexReused, StageSearch,
			fmt.Sprintf("%d chunks, corpus unchanged", len(idx.Entries))))
		return idx, nil
	} else if !errors.Is(err, types.ErrInvalidation) {
		return nil, err
	}

	entries, err := r.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}
	idx, err := vecindex.Build(r.project.Name, model, entries)
	if err != nil {
		return nil, err
	}
	if err := idx.Save(r.project.IndexPath()); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPersistence, err)
	}
	if err := r.store.Update(func(st *runstate.RunState) {
		st.DocFingerprints = fingerprints
		st.EmbeddingModel = model
	}); err != nil {
		return nil, err
	}

	r.progress(events.Info(events.EventIndexBuilt, StageSearch,
		fmt.Sprintf("%d chunks from %d documents", len(entries), len(fingerprints))))
	return idx, nil
}

// ingestCorpus reads and chunks all procedure documents. Unreadable
// documents are reported and excluded; the audit proceeds on the rest.
func (r *Runner) ingestCorpus() ([]ingest.Chunk, map[string]runstate.DocFingerprint) {
	var chunks []ingest.Chunk
	fingerprints := map[string]runstate.DocFingerprint{}

	for _, doc := range ingest.Ingest(r.project.ProcedureDocs) {
		if doc.Err != nil {
			r.progress(events.Failure(events.EventDocumentFailed, StageSearch,
				"document skipped", doc.Err))
			continue
		}
		var mtime int64
		if info, err := os.Stat(doc.Path); err == nil {
			mtime = info.ModTime().Unix()
		}
		fingerprints[doc.Path] = runstate.DocFingerprint{Hash: doc.Hash, MtimeUnix: mtime}

		docChunks := ingest.ChunkDoc(ingest.Normalize(doc), r.settings.ChunkTokens)
		chunks = append(chunks, docChunks...)
		r.progress(events.Info(events.EventDocumentIngested, StageSearch,
			fmt.Sprintf("%s: %d chunks", doc.Path, len(docChunks))))
	}
	return chunks, fingerprints
}

// embedChunks produces index entries for all chunks, hitting the embedding
// cache per chunk content hash. A chunk that cannot be embedded after
// retries aborts the build: a partially embedded index would silently
// narrow every search.
func (r *Runner) embedChunks(ctx context.Context, chunks []ingest.Chunk) ([]vecindex.Entry, error) {
	entries := make([]vecindex.Entry, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.settings.MaxWorkers)
	for i, ch := range chunks {
		if gctx.Err() != nil {
			break
		}
		i, ch := i, ch
		g.Go(func() error {
			vec, err := r.embedText(gctx, ch.Text, ch.ContentHash)
			if err != nil {
				return err
			}
			entries[i] = vecindex.Entry{
				SourceFile:  ch.SourceFile,
				ChunkIndex:  ch.Index,
				ChunkHash:   ch.ContentHash,
				Text:        ch.Text,
				StartOffset: ch.StartOffset,
				EndOffset:   ch.EndOffset,
				Vector:      vec,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// embedText returns the embedding for text, using contentHash as the cache
// identity (the query path passes a hash of the query sentence).
func (r *Runner) embedText(ctx context.Context, text, contentHash string) ([]float32, error) {
	key := cache.Key(contentHash, "embedding", r.settings.EmbeddingModel)
	if vec, ok := r.cache.GetEmbedding(ctx, key); ok {
		return vec, nil
	}
	vec, err := r.embedder.Embed(ctx, r.settings.EmbeddingModel, text)
	if err != nil {
		return nil, err
	}
	if err := r.cache.PutEmbedding(ctx, key, r.settings.EmbeddingModel, vec); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPersistence, err)
	}
	return vec, nil
}

// searchOne retrieves evidence for every task of one clause and persists
// the populated clause before Judge sees it.
func (r *Runner) searchOne(ctx context.Context, id string, idx *vecindex.Index) error {
	clause := r.clauseCopy(id)
	if clause == nil {
		return nil
	}

	results := make(map[string][]types.MatchResult, len(clause.Tasks))
	for _, task := range clause.Tasks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		vec, err := r.embedText(ctx, task.Sentence, cache.Key(task.Sentence))
		if err != nil {
			if isFatal(err) {
				return err
			}
			return r.failClause(StageSearch, id, err)
		}
		hits, err := idx.Search(vec, r.settings.TopK)
		if err != nil {
			return r.failClause(StageSearch, id, err)
		}

		matches := make([]types.MatchResult, len(hits))
		for i, h := range hits {
			matches[i] = types.MatchResult{
				SourceFile:  h.Entry.SourceFile,
				ChunkIndex:  h.Entry.ChunkIndex,
				ChunkHash:   h.Entry.ChunkHash,
				Excerpt:     h.Entry.Text,
				StartOffset: h.Entry.StartOffset,
				EndOffset:   h.Entry.EndOffset,
				Score:       h.Score,
			}
		}
		results[task.ID] = matches
		r.progress(events.Info(events.EventTaskSearched, StageSearch,
			fmt.Sprintf("%d matches", len(matches))).WithClause(id).WithTask(task.ID))
	}

	return r.store.UpdateClause(id, func(c *types.Clause) {
		for _, task := range c.Tasks {
			if m, ok := results[task.ID]; ok {
				task.TopK = m
			}
		}
		c.State = types.StateSearched
		c.Error = ""
	})
}
