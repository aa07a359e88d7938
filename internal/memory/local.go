package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
)

// LocalBackend stores collections as JSON files under a directory, one
// file per collection. It needs no external services and survives
// process restarts, which makes it the default backend.
type LocalBackend struct {
	dir string

	mu          sync.Mutex
	collections map[string]*localCollection
}

// NewLocalBackend creates a file-backed backend rooted at dir.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("memory: create dir %s: %w", dir, err)
	}
	return &LocalBackend{
		dir:         dir,
		collections: make(map[string]*localCollection),
	}, nil
}

// CreateOrOpen returns the named collection, loading it from disk if a
// previous run persisted it.
func (b *LocalBackend) CreateOrOpen(ctx context.Context, name string) (Collection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.collections[name]; ok {
		return c, nil
	}

	c := &localCollection{path: filepath.Join(b.dir, name+".json")}
	if err := c.load(); err != nil {
		return nil, err
	}
	b.collections[name] = c
	return c, nil
}

type localRecord struct {
	ID        string            `json:"id"`
	Document  string            `json:"document"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"embedding"`
}

type localCollection struct {
	path string

	mu      sync.RWMutex
	records []localRecord
	nextID  int
}

func (c *localCollection) load() error {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("memory: read %s: %w", c.path, err)
	}
	if err := json.Unmarshal(data, &c.records); err != nil {
		return fmt.Errorf("memory: parse %s: %w", c.path, err)
	}
	c.nextID = len(c.records)
	return nil
}

// persist writes all records back to disk. Called with c.mu held.
func (c *localCollection) persist() error {
	data, err := json.Marshal(c.records)
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

// Insert reserves the next sequential id under the collection mutex, so
// every Store handle over this collection draws from the same counter.
func (c *localCollection) Insert(ctx context.Context, document string, metadata map[string]string, embedding []float32) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := strconv.Itoa(c.nextID)
	c.records = append(c.records, localRecord{
		ID:        id,
		Document:  document,
		Metadata:  metadata,
		Embedding: embedding,
	})
	if err := c.persist(); err != nil {
		c.records = c.records[:len(c.records)-1]
		return "", fmt.Errorf("memory: persist %s: %w", c.path, err)
	}
	c.nextID++
	return id, nil
}

func (c *localCollection) Nearest(ctx context.Context, embedding []float32, k int) ([]Neighbor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	neighbors := make([]Neighbor, 0, len(c.records))
	for _, r := range c.records {
		neighbors = append(neighbors, Neighbor{
			ID:       r.ID,
			Document: r.Document,
			Metadata: r.Metadata,
			Distance: cosineDistance(embedding, r.Embedding),
		})
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})
	if k < len(neighbors) {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

func (c *localCollection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records), nil
}

// cosineDistance returns 1 - cosine similarity, so the result ranges over
// [0, 2]. Zero-magnitude vectors are treated as maximally distant.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
