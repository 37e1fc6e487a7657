package runstate

import (
	"sync"

	"regaudit/internal/types"
)

// Store is the single writer for one project's run document. All state
// mutation during a run flows through Update so concurrent stage workers
// serialize on the store lock and every mutation hits disk before the
// next item starts.
type Store struct {
	mu    sync.Mutex
	path  string
	state *RunState
}

// Open loads (or initializes) the run document at path.
func Open(path, project string) (*Store, error) {
	st, err := Load(path, project)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, state: st}, nil
}

// State runs fn with the lock held, for read-only access.
func (s *Store) State(fn func(*RunState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// Update applies fn to the state and flushes the whole document
// atomically. The mutation survives in memory even when the flush fails,
// but a flush failure is a persistence error and fatal for the run.
func (s *Store) Update(fn func(*RunState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
	return s.state.save(s.path)
}

// UpdateClause applies fn to one clause and flushes. Unknown IDs are a
// no-op with no write.
func (s *Store) UpdateClause(id string, fn func(*types.Clause)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.Clauses[id]
	if !ok {
		return nil
	}
	fn(c)
	return s.state.save(s.path)
}

// Snapshot returns a deep copy of the current state for rendering without
// holding the lock.
func (s *Store) Snapshot() *RunState {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *s.state
	cp.Clauses = make(map[string]*types.Clause, len(s.state.Clauses))
	for id, c := range s.state.Clauses {
		cc := *c
		if c.Verdict != nil {
			v := *c.Verdict
			cc.Verdict = &v
		}
		cc.Tasks = make([]*types.AuditTask, len(c.Tasks))
		for i, t := range c.Tasks {
			tt := *t
			tt.TopK = append([]types.MatchResult(nil), t.TopK...)
			cc.Tasks[i] = &tt
		}
		cp.Clauses[id] = &cc
	}
	cp.DocFingerprints = make(map[string]DocFingerprint, len(s.state.DocFingerprints))
	for k, v := range s.state.DocFingerprints {
		cp.DocFingerprints[k] = v
	}
	return &cp
}
