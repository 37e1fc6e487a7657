package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// EmbeddingService produces a vector for a piece of text. Implementations
// must be safe for concurrent use.
type EmbeddingService interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint over
// plain HTTP. Requests share the same retry and circuit-breaker policy as
// completions, plus a client-side rate limiter.
type OpenAIEmbedder struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	caller  caller
}

// NewOpenAIEmbedder creates an embedding client. requestsPerSecond bounds
// outbound request rate; zero disables the limiter.
func NewOpenAIEmbedder(baseURL, apiKey string, requestsPerSecond float64, retry RetryConfig) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key is required (set OPENAI_API_KEY)")
	}
	e := &OpenAIEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: retry.Timeout},
		caller:  newCaller(retry),
	}
	if requestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return e, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns the embedding vector for text under the given model.
func (e *OpenAIEmbedder) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding rate limiter: %w", err)
		}
	}

	var vec []float32
	err := e.caller.do(ctx, "embedding", func(ctx context.Context) error {
		body, err := json.Marshal(embeddingRequest{Model: model, Input: text})
		if err != nil {
			return fmt.Errorf("failed to encode embedding request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			e.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return fmt.Errorf("failed to read embedding response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			// Include the status code so isRetriableError can classify it.
			return fmt.Errorf("embedding API returned %d: %s", resp.StatusCode, truncate(string(payload), 200))
		}

		var parsed embeddingResponse
		if err := json.Unmarshal(payload, &parsed); err != nil {
			return fmt.Errorf("failed to decode embedding response: %w", err)
		}
		if parsed.Error != nil {
			return fmt.Errorf("embedding API error: %s", parsed.Error.Message)
		}
		if len(parsed.Data) == 0 {
			return fmt.Errorf("embedding response contained no vectors")
		}

		vec = parsed.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}
