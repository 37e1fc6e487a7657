package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultSettings(t *testing.T) {
	s := Default()
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings should validate: %v", err)
	}
	if s.TopK != 5 {
		t.Errorf("expected default top_k 5, got %d", s.TopK)
	}
	if s.JudgeModel != ModelDefault {
		t.Errorf("expected judge model %s, got %s", ModelDefault, s.JudgeModel)
	}
	if s.NeedCheckModel != ModelSimple {
		t.Errorf("expected need-check model %s, got %s", ModelSimple, s.NeedCheckModel)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if s.TopK != Default().TopK {
		t.Errorf("expected defaults for missing file")
	}
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "top_k: 10\njudge_model: test-model\nrequest_timeout: 30s\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.TopK != 10 {
		t.Errorf("expected top_k 10, got %d", s.TopK)
	}
	if s.JudgeModel != "test-model" {
		t.Errorf("expected overridden judge model, got %s", s.JudgeModel)
	}
	if s.RequestTimeout != Duration(30*time.Second) {
		t.Errorf("expected 30s timeout, got %v", time.Duration(s.RequestTimeout))
	}
	// Unset fields fall back to defaults.
	if s.MaxTasksPerClause != Default().MaxTasksPerClause {
		t.Errorf("expected default max_tasks_per_clause, got %d", s.MaxTasksPerClause)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("top_k: [not a number"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	s := Default()
	s.TopK = 0
	if err := s.Validate(); err == nil {
		t.Error("expected error for zero top_k")
	}

	s = Default()
	s.JudgeModel = ""
	if err := s.Validate(); err == nil {
		t.Error("expected error for empty judge model")
	}
}
