package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ChromaBackend talks to a Chroma server over its REST API. Collections
// are created with cosine space so distances land in [0, 2] and the
// similarity conversion in Store.Query holds.
type ChromaBackend struct {
	baseURL string
	client  *http.Client

	mu          sync.Mutex
	collections map[string]*chromaCollection
}

// ChromaOption configures the Chroma backend.
type ChromaOption func(*ChromaBackend)

// WithChromaHTTPClient sets a custom HTTP client.
func WithChromaHTTPClient(client *http.Client) ChromaOption {
	return func(b *ChromaBackend) { b.client = client }
}

// NewChromaBackend creates a backend against the given Chroma server URL
// (e.g., "http://localhost:8000").
func NewChromaBackend(baseURL string, opts ...ChromaOption) (*ChromaBackend, error) {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	b := &ChromaBackend{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: 30 * time.Second},
		collections: make(map[string]*chromaCollection),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Ping checks if the Chroma server is reachable.
func (b *ChromaBackend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/v1/heartbeat", nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrStorageUnavailable, resp.StatusCode)
	}
	return nil
}

// CreateOrOpen gets or creates the named collection on the server.
// Repeated opens through one backend share a single collection handle,
// so insert serialization covers every Store over the same name.
func (b *ChromaBackend) CreateOrOpen(ctx context.Context, name string) (Collection, error) {
	b.mu.Lock()
	if c, ok := b.collections[name]; ok {
		b.mu.Unlock()
		return c, nil
	}
	b.mu.Unlock()

	body := chromaCreateRequest{
		Name:        name,
		Metadata:    map[string]any{"hnsw:space": "cosine"},
		GetOrCreate: true,
	}
	var result chromaCollectionResponse
	if err := b.post(ctx, "/api/v1/collections", body, &result); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.collections[name]; ok {
		return c, nil
	}
	c := &chromaCollection{backend: b, id: result.ID, name: name}
	b.collections[name] = c
	return c, nil
}

// ── Internal Types ──

type chromaCreateRequest struct {
	Name        string         `json:"name"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GetOrCreate bool           `json:"get_or_create"`
}

type chromaCollectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type chromaAddRequest struct {
	IDs        []string            `json:"ids"`
	Embeddings [][]float32         `json:"embeddings"`
	Documents  []string            `json:"documents"`
	Metadatas  []map[string]string `json:"metadatas"`
}

type chromaQueryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type chromaQueryResponse struct {
	IDs       [][]string            `json:"ids"`
	Documents [][]string            `json:"documents"`
	Metadatas [][]map[string]string `json:"metadatas"`
	Distances [][]float64           `json:"distances"`
}

// ── Helpers ──

func (b *ChromaBackend) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("chroma: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chroma: HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("chroma: decode response: %w", err)
		}
	}
	return nil
}

func (b *ChromaBackend) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chroma: HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type chromaCollection struct {
	backend *ChromaBackend
	id      string
	name    string

	mu sync.Mutex // serializes inserts for count-derived id assignment
}

// Insert derives the record id from the server-side count at insert time,
// so the id sequence follows the collection rather than any one handle.
func (c *chromaCollection) Insert(ctx context.Context, document string, metadata map[string]string, embedding []float32) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count, err := c.Count(ctx)
	if err != nil {
		return "", err
	}
	id := strconv.Itoa(count)
	body := chromaAddRequest{
		IDs:        []string{id},
		Embeddings: [][]float32{embedding},
		Documents:  []string{document},
		Metadatas:  []map[string]string{metadata},
	}
	if err := c.backend.post(ctx, "/api/v1/collections/"+c.id+"/add", body, nil); err != nil {
		return "", err
	}
	return id, nil
}

func (c *chromaCollection) Nearest(ctx context.Context, embedding []float32, k int) ([]Neighbor, error) {
	body := chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        k,
		Include:         []string{"documents", "metadatas", "distances"},
	}
	var result chromaQueryResponse
	if err := c.backend.post(ctx, "/api/v1/collections/"+c.id+"/query", body, &result); err != nil {
		return nil, err
	}

	if len(result.Documents) == 0 {
		return nil, nil
	}
	docs := result.Documents[0]
	neighbors := make([]Neighbor, 0, len(docs))
	for i := range docs {
		n := Neighbor{Document: docs[i]}
		if len(result.IDs) > 0 && i < len(result.IDs[0]) {
			n.ID = result.IDs[0][i]
		}
		if len(result.Metadatas) > 0 && i < len(result.Metadatas[0]) {
			n.Metadata = result.Metadatas[0][i]
		}
		if len(result.Distances) > 0 && i < len(result.Distances[0]) {
			n.Distance = result.Distances[0][i]
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, nil
}

func (c *chromaCollection) Count(ctx context.Context) (int, error) {
	var count int
	if err := c.backend.get(ctx, "/api/v1/collections/"+c.id+"/count", &count); err != nil {
		return 0, err
	}
	return count, nil
}
