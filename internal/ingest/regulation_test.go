package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"regaudit/internal/types"
)

func writeReg(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadClausesYAML(t *testing.T) {
	path := writeReg(t, "reg.yaml", `
- id: C1
  title: Incident reporting
  text: Incidents must be reported within 24 hours.
- id: C2
  text: Records must be retained for five years.
  metadata:
    chapter: "3"
`)
	clauses, err := LoadClauses(path)
	if err != nil {
		t.Fatalf("LoadClauses failed: %v", err)
	}
	if len(clauses) != 2 {
		t.Fatalf("expected 2 clauses, got %d", len(clauses))
	}
	if clauses[0].ID != "C1" || clauses[0].Title != "Incident reporting" {
		t.Errorf("unexpected first clause: %+v", clauses[0])
	}
	if clauses[1].Metadata["chapter"] != "3" {
		t.Errorf("metadata lost: %+v", clauses[1].Metadata)
	}
	for _, c := range clauses {
		if c.State != types.StatePending {
			t.Errorf("clause %s should start pending, got %s", c.ID, c.State)
		}
	}
}

func TestLoadClausesJSON(t *testing.T) {
	path := writeReg(t, "reg.json", `[{"id": "C1", "text": "some requirement"}]`)
	clauses, err := LoadClauses(path)
	if err != nil {
		t.Fatalf("LoadClauses failed: %v", err)
	}
	if len(clauses) != 1 || clauses[0].ID != "C1" {
		t.Errorf("unexpected clauses: %+v", clauses)
	}
}

func TestLoadClausesRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty.yaml":     `[]`,
		"duplicate.yaml": "- id: C1\n  text: a\n- id: C1\n  text: b\n",
		"notext.yaml":    "- id: C1\n  text: \"  \"\n",
		"bad.csv":        "id,text\n",
	}
	for name, content := range cases {
		path := writeReg(t, name, content)
		if _, err := LoadClauses(path); !errors.Is(err, types.ErrIngestion) {
			t.Errorf("%s: expected ErrIngestion, got %v", name, err)
		}
	}
}
