package cache

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestCache(t *testing.T) *ContentCache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKeyDerivation(t *testing.T) {
	if Key("a", "b") == Key("ab") {
		t.Error("joined parts must not collide with concatenation")
	}
	if Key("a", "b") != Key("a", "b") {
		t.Error("key derivation must be deterministic")
	}
	if len(Key("x")) != 64 {
		t.Errorf("expected sha256 hex key, got length %d", len(Key("x")))
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	key := Key("chunkhash", "text-embedding-3-large")
	if _, ok := c.GetEmbedding(ctx, key); ok {
		t.Fatal("expected miss on cold cache")
	}

	vec := []float32{0.1, -2.5, 3.25}
	if err := c.PutEmbedding(ctx, key, "text-embedding-3-large", vec); err != nil {
		t.Fatalf("PutEmbedding failed: %v", err)
	}

	got, ok := c.GetEmbedding(ctx, key)
	if !ok {
		t.Fatal("expected hit after put")
	}
	if len(got) != len(vec) {
		t.Fatalf("expected %d dims, got %d", len(vec), len(got))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("dim %d: expected %v, got %v", i, vec[i], got[i])
		}
	}
}

func TestEmptyEmbeddingIsCacheable(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	key := Key("empty")
	if err := c.PutEmbedding(ctx, key, "m", []float32{}); err != nil {
		t.Fatalf("PutEmbedding failed: %v", err)
	}
	got, ok := c.GetEmbedding(ctx, key)
	if !ok {
		t.Fatal("empty vector should still be a hit")
	}
	if len(got) != 0 {
		t.Errorf("expected empty vector, got %d dims", len(got))
	}
}

func TestJSONRoundTrip(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	type verdict struct {
		Status     string  `json:"status"`
		Confidence float64 `json:"confidence"`
	}

	key := Key("clause", "judge", "model-x")
	in := verdict{Status: "compliant", Confidence: 0.9}
	if err := c.PutJSON(ctx, key, "model-x", in); err != nil {
		t.Fatalf("PutJSON failed: %v", err)
	}

	var out verdict
	if !c.GetJSON(ctx, key, &out) {
		t.Fatal("expected hit after put")
	}
	if out != in {
		t.Errorf("expected %+v, got %+v", in, out)
	}
}

func TestCorruptPayloadTreatedAsMiss(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	// A JSON payload read back as an embedding has the wrong framing.
	key := Key("cross-kind")
	if err := c.PutJSON(ctx, key, "m", map[string]string{"a": "b"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.GetEmbedding(ctx, key); ok {
		t.Error("corrupt embedding payload must be a miss, not a wrong value")
	}

	var out []int
	if c.GetJSON(ctx, key, &out) {
		t.Error("type-mismatched JSON payload must be a miss")
	}
}

func TestClearAndStats(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	if err := c.PutEmbedding(ctx, Key("e1"), "m", []float32{1}); err != nil {
		t.Fatal(err)
	}
	if err := c.PutJSON(ctx, Key("j1"), "m", "payload"); err != nil {
		t.Fatal(err)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Entries[KindEmbedding] != 1 || stats.Entries[KindJSON] != 1 {
		t.Errorf("unexpected stats: %+v", stats.Entries)
	}

	n, err := c.Clear(ctx, KindEmbedding)
	if err != nil || n != 1 {
		t.Fatalf("expected to clear 1 embedding, got %d (%v)", n, err)
	}
	if _, ok := c.GetEmbedding(ctx, Key("e1")); ok {
		t.Error("embedding should be gone after Clear")
	}
	var s string
	if !c.GetJSON(ctx, Key("j1"), &s) {
		t.Error("JSON entry should survive kind-scoped clear")
	}

	if n, err = c.Clear(ctx, ""); err != nil || n != 1 {
		t.Fatalf("expected full clear to remove 1 remaining entry, got %d (%v)", n, err)
	}
}
