package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"regaudit/internal/types"
)

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestReadsSupportedFiles(t *testing.T) {
	p := writeDoc(t, "proc.md", "# Incident Response\n\nReport incidents within 24 hours.\n")
	docs := Ingest([]string{p})
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(docs))
	}
	if docs[0].Err != nil {
		t.Fatalf("unexpected error: %v", docs[0].Err)
	}
	if docs[0].Hash == "" || len(docs[0].Hash) != 64 {
		t.Errorf("expected sha256 hex hash, got %q", docs[0].Hash)
	}
}

func TestIngestPartialFailure(t *testing.T) {
	good := writeDoc(t, "a.txt", "content")
	docs := Ingest([]string{good, "/nonexistent/b.txt", writeDoc(t, "c.pdf", "x")})
	if len(docs) != 3 {
		t.Fatalf("expected 3 results, got %d", len(docs))
	}
	if docs[0].Err != nil {
		t.Errorf("good doc should not error: %v", docs[0].Err)
	}
	for _, d := range docs[1:] {
		if !errors.Is(d.Err, types.ErrIngestion) {
			t.Errorf("expected ErrIngestion for %s, got %v", d.Path, d.Err)
		}
	}
}

func TestNormalizeStripsStructure(t *testing.T) {
	raw := RawDoc{
		Path:    "p.md",
		Content: "## 1.2 Reporting\n\n1. Report  within\t24 hours.\n\n\n2.3.1 Escalate to the CISO.\n",
	}
	doc := Normalize(raw)
	if len(doc.Lines) != 3 {
		t.Fatalf("expected 3 kept lines, got %d: %+v", len(doc.Lines), doc.Lines)
	}
	if doc.Lines[0].Text != "Reporting" {
		t.Errorf("heading not stripped: %q", doc.Lines[0].Text)
	}
	if doc.Lines[1].Text != "Report within 24 hours." {
		t.Errorf("whitespace not consolidated: %q", doc.Lines[1].Text)
	}
	if doc.Lines[2].Text != "Escalate to the CISO." {
		t.Errorf("section number not stripped: %q", doc.Lines[2].Text)
	}
	if !doc.Lines[1].ParaStart || !doc.Lines[2].ParaStart {
		t.Error("blank lines should mark paragraph starts")
	}
}

func TestNormalizeOffsetsReferenceRawContent(t *testing.T) {
	content := "alpha line\n\nbeta line\n"
	doc := Normalize(RawDoc{Path: "p.txt", Content: content})
	if len(doc.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(doc.Lines))
	}
	for _, ln := range doc.Lines {
		got := content[ln.StartOffset:ln.EndOffset]
		if !strings.Contains(got, strings.Fields(ln.Text)[0]) {
			t.Errorf("offset span %q does not cover line %q", got, ln.Text)
		}
	}
}

func TestChunkParagraphFirst(t *testing.T) {
	raw := RawDoc{Path: "p.txt", Content: strings.Repeat("one two three four five six.\n\n", 6)}
	doc := Normalize(raw)

	chunks := ChunkDoc(doc, 20)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.ContentHash == "" {
			t.Errorf("chunk %d missing content hash", i)
		}
		if approxTokens(c.Text) > 20 {
			t.Errorf("chunk %d exceeds budget: %q", i, c.Text)
		}
	}
}

func TestChunkOversizeSentenceHardCut(t *testing.T) {
	long := strings.Repeat("word ", 100)
	doc := Normalize(RawDoc{Path: "p.txt", Content: long + "\n"})
	chunks := ChunkDoc(doc, 10)
	if len(chunks) < 5 {
		t.Fatalf("expected hard cuts, got %d chunks", len(chunks))
	}
	for _, c := range chunks {
		if approxTokens(c.Text) > 10 {
			t.Errorf("hard-cut chunk over budget: %q", c.Text)
		}
	}
}

func TestChunkEmptyDoc(t *testing.T) {
	doc := Normalize(RawDoc{Path: "p.txt", Content: "\n\n  \n"})
	if got := ChunkDoc(doc, 100); len(got) != 0 {
		t.Errorf("expected no chunks for blank doc, got %d", len(got))
	}
}

func TestChunkDeterministic(t *testing.T) {
	raw := RawDoc{Path: "p.txt", Content: "First paragraph here.\n\nSecond paragraph follows. It has two sentences.\n"}
	a := ChunkDoc(Normalize(raw), 15)
	b := ChunkDoc(Normalize(raw), 15)
	if len(a) != len(b) {
		t.Fatalf("nondeterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}
