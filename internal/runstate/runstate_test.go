package runstate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"regaudit/internal/types"
)

func clause(id, text string) *types.Clause {
	return &types.Clause{ID: id, Text: text, State: types.StatePending}
}

func TestLoadMissingFileYieldsFreshState(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "run.json"), "proj")
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if st.ProjectName != "proj" || len(st.Clauses) != 0 {
		t.Errorf("unexpected fresh state: %+v", st)
	}
}

func TestLoadCorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, "proj"); !errors.Is(err, types.ErrPersistence) {
		t.Errorf("corrupt file must surface ErrPersistence, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	st := New("proj")
	st.Clauses["C001"] = clause("C001", "incidents shall be classified")
	st.Clauses["C001"].State = types.StateJudged
	st.Clauses["C001"].Verdict = &types.Verdict{Status: types.VerdictCompliant, Confidence: 0.8}
	st.DocFingerprints["p.md"] = DocFingerprint{Hash: "abc", MtimeUnix: 42}

	if err := st.save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path, "proj")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c := loaded.Clauses["C001"]
	if c == nil || c.State != types.StateJudged || c.Verdict.Status != types.VerdictCompliant {
		t.Errorf("round trip lost clause data: %+v", c)
	}
	if loaded.DocFingerprints["p.md"].Hash != "abc" {
		t.Errorf("round trip lost fingerprints: %+v", loaded.DocFingerprints)
	}
}

func TestMergeSourceIsMaster(t *testing.T) {
	st := New("proj")
	kept := clause("C1", "unchanged text")
	kept.State = types.StateJudged
	kept.Verdict = &types.Verdict{Status: types.VerdictCompliant}
	st.Clauses["C1"] = kept
	changed := clause("C2", "old text")
	changed.State = types.StateJudged
	st.Clauses["C2"] = changed
	st.Clauses["C3"] = clause("C3", "removed from source")

	st.Merge([]*types.Clause{
		clause("C1", "unchanged text"),
		clause("C2", "new text"),
		clause("C4", "brand new"),
	})

	if st.Clauses["C1"].State != types.StateJudged {
		t.Error("unchanged clause must keep its progress")
	}
	if st.Clauses["C2"].State != types.StatePending || st.Clauses["C2"].Text != "new text" {
		t.Errorf("text change must reset the clause: %+v", st.Clauses["C2"])
	}
	if _, ok := st.Clauses["C3"]; ok {
		t.Error("clause absent from source must be dropped")
	}
	if st.Clauses["C4"] == nil || st.Clauses["C4"].State != types.StatePending {
		t.Error("new clause must be added as pending")
	}
}

func TestStoreUpdatePersistsEveryMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	s, err := Open(path, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update(func(st *RunState) {
		st.Clauses["C1"] = clause("C1", "text")
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Reload from disk: the mutation must already be there.
	fresh, err := Load(path, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Clauses["C1"] == nil {
		t.Error("update was not flushed to disk")
	}
}

func TestStoreUpdateClause(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	s, err := Open(path, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update(func(st *RunState) {
		st.Clauses["C1"] = clause("C1", "text")
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateClause("C1", func(c *types.Clause) {
		c.State = types.StateSkipped
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateClause("missing", func(c *types.Clause) {
		t.Error("fn must not run for unknown clause")
	}); err != nil {
		t.Fatal(err)
	}

	fresh, err := Load(path, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Clauses["C1"].State != types.StateSkipped {
		t.Errorf("clause update lost: %+v", fresh.Clauses["C1"])
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "run.json"), "proj")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update(func(st *RunState) {
		c := clause("C1", "text")
		c.Tasks = []*types.AuditTask{{ID: "T1", Sentence: "s"}}
		st.Clauses["C1"] = c
	}); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	snap.Clauses["C1"].State = types.StateFailed
	snap.Clauses["C1"].Tasks[0].Sentence = "mutated"

	s.State(func(st *RunState) {
		if st.Clauses["C1"].State == types.StateFailed {
			t.Error("snapshot mutation leaked into store state")
		}
		if st.Clauses["C1"].Tasks[0].Sentence != "s" {
			t.Error("snapshot task mutation leaked into store state")
		}
	})
}

func TestClauseIDsSorted(t *testing.T) {
	st := New("proj")
	for _, id := range []string{"C3", "C1", "C2"} {
		st.Clauses[id] = clause(id, "t")
	}
	ids := st.ClauseIDs()
	if ids[0] != "C1" || ids[1] != "C2" || ids[2] != "C3" {
		t.Errorf("expected sorted IDs, got %v", ids)
	}
}
