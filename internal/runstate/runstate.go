// Package runstate persists pipeline progress. The run document is the
// single source of truth for what has been computed: it is reloaded on
// startup, merged against the regulation file, and rewritten atomically
// after every unit of work so a crash loses at most the in-flight item.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"regaudit/internal/types"
)

// SchemaVersion guards against loading documents written by an
// incompatible release.
const SchemaVersion = 1

// DocFingerprint records the identity of one procedure document at the
// time its chunks were embedded and indexed. A mismatch on a later run
// invalidates the derived index.
type DocFingerprint struct {
	Hash      string `json:"hash"`
	MtimeUnix int64  `json:"mtime_unix"`
}

// RunState is the aggregate root for one project's audit progress.
type RunState struct {
	SchemaVersion   int                       `json:"schema_version"`
	ProjectName     string                    `json:"project_name"`
	EmbeddingModel  string                    `json:"embedding_model,omitempty"`
	Clauses         map[string]*types.Clause  `json:"clauses"`
	DocFingerprints map[string]DocFingerprint `json:"doc_fingerprints,omitempty"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// New returns an empty state for a project.
func New(project string) *RunState {
	return &RunState{
		SchemaVersion:   SchemaVersion,
		ProjectName:     project,
		Clauses:         map[string]*types.Clause{},
		DocFingerprints: map[string]DocFingerprint{},
	}
}

// Load reads a run document. A missing file yields a fresh state; a
// present-but-unreadable one is an error the user must resolve, never
// silently discarded progress.
func Load(path, project string) (*RunState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(project), nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", types.ErrPersistence, path, err)
	}

	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %s is corrupt: %v", types.ErrPersistence, path, err)
	}
	if st.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %s has schema version %d, expected %d",
			types.ErrPersistence, path, st.SchemaVersion, SchemaVersion)
	}
	if st.Clauses == nil {
		st.Clauses = map[string]*types.Clause{}
	}
	if st.DocFingerprints == nil {
		st.DocFingerprints = map[string]DocFingerprint{}
	}
	return &st, nil
}

// Merge reconciles the state with the clauses parsed from the regulation
// file, which is the master list. New clauses are added as pending; for
// known IDs the stored pipeline progress is kept but the source text wins —
// a text change resets the clause since every cached result keys on it.
// Clauses no longer present in the source are dropped.
func (st *RunState) Merge(source []*types.Clause) {
	merged := make(map[string]*types.Clause, len(source))
	for _, src := range source {
		prev, ok := st.Clauses[src.ID]
		if !ok || prev.Text != src.Text {
			c := *src
			c.State = types.StatePending
			merged[src.ID] = &c
			continue
		}
		// Source metadata may have changed even when the text didn't.
		prev.Title = src.Title
		prev.Metadata = src.Metadata
		merged[src.ID] = prev
	}
	st.Clauses = merged
}

// ClauseIDs returns all clause IDs in stable sorted order.
func (st *RunState) ClauseIDs() []string {
	ids := make([]string, 0, len(st.Clauses))
	for id := range st.Clauses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Summary counts clauses by state.
func (st *RunState) Summary() map[types.ClauseState]int {
	out := map[types.ClauseState]int{}
	for _, c := range st.Clauses {
		out[c.State]++
	}
	return out
}

// save writes the document atomically via temp file + rename.
func (st *RunState) save(path string) error {
	st.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding run state: %v", types.ErrPersistence, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", types.ErrPersistence, dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".run-*.json")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", types.ErrPersistence, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing run state: %v", types.ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: syncing run state: %v", types.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing run state: %v", types.ErrPersistence, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: replacing %s: %v", types.ErrPersistence, path, err)
	}
	return nil
}
