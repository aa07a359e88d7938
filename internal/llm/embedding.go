package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/seenimoa/tradeswarm/internal/config"
)

// OpenAIEmbedder implements Embedder against OpenAI's /embeddings endpoint
// or any OpenAI-compatible server.
type OpenAIEmbedder struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// OpenAIEmbedderOption configures the OpenAI embedder.
type OpenAIEmbedderOption func(*OpenAIEmbedder)

// WithEmbedderBaseURL sets a custom base URL.
func WithEmbedderBaseURL(url string) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) { e.baseURL = strings.TrimRight(url, "/") }
}

// WithEmbedderModel sets the embedding model.
func WithEmbedderModel(model string) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) { e.model = model }
}

// WithEmbedderHTTPClient sets a custom HTTP client.
func WithEmbedderHTTPClient(client *http.Client) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) { e.client = client }
}

// NewOpenAIEmbedder creates an embedder backed by OpenAI's embeddings API.
func NewOpenAIEmbedder(apiKey string, opts ...OpenAIEmbedderOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	e := &OpenAIEmbedder{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		model:   "text-embedding-3-small",
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *OpenAIEmbedder) Name() string { return "openai/" + e.model }

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the given text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	data, err := json.Marshal(openAIEmbeddingRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrEmbedding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrEmbedding, resp.StatusCode, string(body))
	}

	var result openAIEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrEmbedding, err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbedding)
	}
	return result.Data[0].Embedding, nil
}

// OllamaEmbedder implements Embedder against a local Ollama instance.
type OllamaEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// OllamaEmbedderOption configures the Ollama embedder.
type OllamaEmbedderOption func(*OllamaEmbedder)

// WithOllamaEmbedderModel sets the embedding model.
func WithOllamaEmbedderModel(model string) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) { e.model = model }
}

// WithOllamaEmbedderHTTPClient sets a custom HTTP client.
func WithOllamaEmbedderHTTPClient(client *http.Client) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) { e.client = client }
}

// NewOllamaEmbedder creates an embedder backed by Ollama's embeddings API.
func NewOllamaEmbedder(baseURL string, opts ...OllamaEmbedderOption) (*OllamaEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	e := &OllamaEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   "nomic-embed-text",
		client:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *OllamaEmbedder) Name() string { return "ollama/" + e.model }

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding vector for the given text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	data, err := json.Marshal(ollamaEmbeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrEmbedding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrEmbedding, resp.StatusCode, string(body))
	}

	var result ollamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrEmbedding, err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbedding)
	}
	return result.Embedding, nil
}

// NewEmbeddersFromConfig builds the primary and optional secondary embedder
// from the application config. The secondary may be nil.
func NewEmbeddersFromConfig(cfg *config.Config) (primary, secondary Embedder, err error) {
	build := func(provider string) (Embedder, error) {
		switch provider {
		case ProviderOpenAI:
			opts := []OpenAIEmbedderOption{WithEmbedderModel(cfg.Embedding.Model)}
			if cfg.Embedding.BaseURL != "" {
				opts = append(opts, WithEmbedderBaseURL(cfg.Embedding.BaseURL))
			}
			return NewOpenAIEmbedder(cfg.LLM.OpenAIKey, opts...)
		case ProviderOllama:
			return NewOllamaEmbedder(cfg.LLM.OllamaURL,
				WithOllamaEmbedderModel(cfg.Embedding.OllamaModel))
		default:
			return nil, fmt.Errorf("%w: unknown embedding provider %q", ErrEmbedding, provider)
		}
	}

	primary, err = build(cfg.Embedding.Primary)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Embedding.Secondary != "" && cfg.Embedding.Secondary != cfg.Embedding.Primary {
		// Secondary is best effort; skip it if it cannot be built.
		if s, serr := build(cfg.Embedding.Secondary); serr == nil {
			secondary = s
		} else {
			log.Printf("llm: secondary embedder unavailable: %v", serr)
		}
	}
	return primary, secondary, nil
}
