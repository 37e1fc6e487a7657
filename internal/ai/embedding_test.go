package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"regaudit/internal/types"
)

func TestOpenAIEmbedderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Model != "test-model" || req.Input != "hello" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(srv.URL, "test-key", 0, testRetryConfig())
	if err != nil {
		t.Fatal(err)
	}
	vec, err := e.Embed(context.Background(), "test-model", "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("unexpected vector: %v", vec)
	}
}

func TestOpenAIEmbedderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "temporarily overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1}}},
		})
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(srv.URL, "k", 0, testRetryConfig())
	if err != nil {
		t.Fatal(err)
	}
	vec, err := e.Embed(context.Background(), "m", "text")
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
	if len(vec) != 1 {
		t.Errorf("unexpected vector: %v", vec)
	}
}

func TestOpenAIEmbedderAuthFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(srv.URL, "bad-key", 0, testRetryConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(context.Background(), "m", "text"); !errors.Is(err, types.ErrProvider) {
		t.Errorf("expected ErrProvider, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("401 should not be retried, got %d calls", calls.Load())
	}
}

func TestNewOpenAIEmbedderRequiresKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder("http://x", "", 0, DefaultRetryConfig()); err == nil {
		t.Error("expected error for missing API key")
	}
}
