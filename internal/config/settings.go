// Package config loads pipeline settings. The pipeline itself takes a
// Settings value as an explicit, immutable parameter per run; nothing here
// is ambient global state.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Model defaults. The judge stage uses the high-end model; need-check is a
// cheap boolean classification and runs on the cost-efficient model.
//
// Environment variable overrides:
// - REGAUDIT_MODEL_DEFAULT: override the default completion model
// - REGAUDIT_MODEL_SIMPLE: override the model for simple classifications
// - REGAUDIT_EMBEDDING_MODEL: override the embedding model
const (
	// ModelDefault is the model for reasoning-heavy stages (AuditPlan, Judge)
	ModelDefault = "claude-sonnet-4-5-20250929"

	// ModelSimple is the cost-efficient model for simple classifications (NeedCheck)
	ModelSimple = "claude-3-5-haiku-20241022"

	// ModelEmbedding is the default embedding model
	ModelEmbedding = "text-embedding-3-large"
)

// Duration wraps time.Duration with YAML support for "30s"-style strings
// (yaml.v3 has no native duration decoding).
type Duration time.Duration

// UnmarshalYAML accepts a duration string ("90s", "2m") or a bare number
// of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		dur, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(dur)
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Settings holds all tunables for one pipeline run. Values that affect a
// computed result (models, top-K, chunk budget) participate in cache keys.
type Settings struct {
	// NeedCheckModel classifies whether a clause requires a procedure.
	NeedCheckModel string `yaml:"need_check_model"`
	// AuditPlanModel decomposes clauses into audit tasks.
	AuditPlanModel string `yaml:"audit_plan_model"`
	// JudgeModel produces the final compliance judgment.
	JudgeModel string `yaml:"judge_model"`
	// EmbeddingModel produces chunk and query vectors.
	EmbeddingModel string `yaml:"embedding_model"`

	// TopK is the number of evidence chunks retrieved per audit task.
	TopK int `yaml:"top_k"`
	// MaxTasksPerClause bounds AuditPlan output; zero-task or oversized
	// plans are re-prompted once and then rejected.
	MaxTasksPerClause int `yaml:"max_tasks_per_clause"`
	// ChunkTokens is the token budget per procedure chunk.
	ChunkTokens int `yaml:"chunk_tokens"`

	// MaxWorkers bounds concurrent work items within a stage.
	MaxWorkers int `yaml:"max_workers"`
	// MaxConcurrentCalls bounds in-flight provider API calls.
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
	// EmbedRateLimit is the embedding request budget per second.
	EmbedRateLimit float64 `yaml:"embed_rate_limit"`

	// RequestTimeout is the per-attempt provider call timeout.
	RequestTimeout Duration `yaml:"request_timeout"`
	// MaxRetries is the retry budget per provider call.
	MaxRetries int `yaml:"max_retries"`

	// AnthropicAPIKey and EmbeddingAPIKey are read from the environment
	// when empty (ANTHROPIC_API_KEY, OPENAI_API_KEY).
	AnthropicAPIKey string `yaml:"-"`
	EmbeddingAPIKey string `yaml:"-"`
	// EmbeddingBaseURL points at an OpenAI-compatible embeddings endpoint.
	EmbeddingBaseURL string `yaml:"embedding_base_url"`

	// CachePath is the global content cache database. Empty uses the
	// default under the user cache dir.
	CachePath string `yaml:"cache_path"`
}

// Default returns settings with sensible defaults applied.
func Default() Settings {
	return Settings{
		NeedCheckModel:     envOr("REGAUDIT_MODEL_SIMPLE", ModelSimple),
		AuditPlanModel:     envOr("REGAUDIT_MODEL_DEFAULT", ModelDefault),
		JudgeModel:         envOr("REGAUDIT_MODEL_DEFAULT", ModelDefault),
		EmbeddingModel:     envOr("REGAUDIT_EMBEDDING_MODEL", ModelEmbedding),
		TopK:               5,
		MaxTasksPerClause:  8,
		ChunkTokens:        200,
		MaxWorkers:         4,
		MaxConcurrentCalls: 3,
		EmbedRateLimit:     10,
		RequestTimeout:     Duration(60 * time.Second),
		MaxRetries:         3,
		AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		EmbeddingAPIKey:    os.Getenv("OPENAI_API_KEY"),
		EmbeddingBaseURL:   envOr("REGAUDIT_EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
	}
}

// Load reads settings from a YAML file, layering the file's values over the
// defaults. A missing file is not an error; defaults apply.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return s.normalized(), nil
}

// Validate checks the settings are usable for a run.
func (s Settings) Validate() error {
	if s.TopK <= 0 {
		return fmt.Errorf("top_k must be positive (got %d)", s.TopK)
	}
	if s.MaxTasksPerClause <= 0 {
		return fmt.Errorf("max_tasks_per_clause must be positive (got %d)", s.MaxTasksPerClause)
	}
	if s.ChunkTokens <= 0 {
		return fmt.Errorf("chunk_tokens must be positive (got %d)", s.ChunkTokens)
	}
	if s.NeedCheckModel == "" || s.AuditPlanModel == "" || s.JudgeModel == "" || s.EmbeddingModel == "" {
		return fmt.Errorf("all stage models must be configured")
	}
	return nil
}

func (s Settings) normalized() Settings {
	d := Default()
	if s.TopK == 0 {
		s.TopK = d.TopK
	}
	if s.MaxTasksPerClause == 0 {
		s.MaxTasksPerClause = d.MaxTasksPerClause
	}
	if s.ChunkTokens == 0 {
		s.ChunkTokens = d.ChunkTokens
	}
	if s.MaxWorkers == 0 {
		s.MaxWorkers = d.MaxWorkers
	}
	if s.MaxConcurrentCalls == 0 {
		s.MaxConcurrentCalls = d.MaxConcurrentCalls
	}
	if s.EmbedRateLimit == 0 {
		s.EmbedRateLimit = d.EmbedRateLimit
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = d.RequestTimeout
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = d.MaxRetries
	}
	if s.EmbeddingBaseURL == "" {
		s.EmbeddingBaseURL = d.EmbeddingBaseURL
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
