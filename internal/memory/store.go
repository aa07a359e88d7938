// Package memory implements the situational memory store that lets
// debate agents learn from past trading decisions. Each agent owns a
// named append-only collection of situation/recommendation pairs,
// retrieved later by embedding similarity.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/seenimoa/tradeswarm/internal/llm"
)

// ErrStorageUnavailable indicates the backing vector store cannot be reached.
var ErrStorageUnavailable = errors.New("memory: storage unavailable")

// Pair is one situation/recommendation record to remember.
type Pair struct {
	Situation      string `json:"situation"`
	Recommendation string `json:"recommendation"`
}

// Match is one similarity-search result.
type Match struct {
	MatchedSituation string  `json:"matched_situation"`
	Recommendation   string  `json:"recommendation"`
	SimilarityScore  float64 `json:"similarity_score"`
}

// Config wires a Store to its backend and embedders.
type Config struct {
	Backend   Backend
	Primary   llm.Embedder
	Secondary llm.Embedder // optional fallback, may be nil
}

// Store is a named situational memory collection. Safe for concurrent use;
// any number of stores may be opened over the same collection, since ids
// and counts live in the collection rather than the handle.
type Store struct {
	name      string
	coll      Collection
	primary   llm.Embedder
	secondary llm.Embedder
}

// Open opens or creates the named collection. Opening the same name twice
// yields stores over the same persistent data.
func Open(ctx context.Context, name string, cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("memory: backend is required")
	}
	if cfg.Primary == nil {
		return nil, fmt.Errorf("memory: primary embedder is required")
	}
	coll, err := cfg.Backend.CreateOrOpen(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: open collection %q: %v", ErrStorageUnavailable, name, err)
	}
	// Reachability probe so an unreachable backend fails at open, not on
	// the first append.
	if _, err := coll.Count(ctx); err != nil {
		return nil, fmt.Errorf("%w: count collection %q: %v", ErrStorageUnavailable, name, err)
	}
	return &Store{
		name:      name,
		coll:      coll,
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
	}, nil
}

// Name returns the collection name.
func (s *Store) Name() string { return s.name }

// Append stores the given pairs and returns the number actually inserted.
// Pairs with an empty situation or recommendation are skipped. A pair whose
// embedding fails is logged and skipped without affecting the others.
// Sequential ids are assigned by the collection at insert time, so
// concurrent appenders, even through separate handles, never collide.
func (s *Store) Append(ctx context.Context, pairs []Pair) (int, error) {
	inserted := 0
	for _, p := range pairs {
		if p.Situation == "" || p.Recommendation == "" {
			continue
		}

		embedding, err := s.embed(ctx, p.Situation)
		if err != nil {
			log.Printf("memory: %s: skipping record, embedding failed: %v", s.name, err)
			continue
		}

		meta := map[string]string{"recommendation": p.Recommendation}
		if _, err := s.coll.Insert(ctx, p.Situation, meta, embedding); err != nil {
			return inserted, fmt.Errorf("%w: insert into %q: %v", ErrStorageUnavailable, s.name, err)
		}
		inserted++
	}
	return inserted, nil
}

// Query returns up to k past situations most similar to the given one,
// ordered by non-increasing similarity. The score is 1 - cosine distance,
// so it ranges over [-1, 1]. An empty collection yields an empty slice.
func (s *Store) Query(ctx context.Context, situation string, k int) ([]Match, error) {
	if k <= 0 {
		k = 1
	}

	n, err := s.coll.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: count %q: %v", ErrStorageUnavailable, s.name, err)
	}
	if n == 0 {
		return []Match{}, nil
	}
	if k > n {
		k = n
	}

	embedding, err := s.embed(ctx, situation)
	if err != nil {
		return nil, err
	}

	neighbors, err := s.coll.Nearest(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("%w: query %q: %v", ErrStorageUnavailable, s.name, err)
	}

	matches := make([]Match, 0, len(neighbors))
	for _, nb := range neighbors {
		matches = append(matches, Match{
			MatchedSituation: nb.Document,
			Recommendation:   nb.Metadata["recommendation"],
			SimilarityScore:  1 - nb.Distance,
		})
	}
	return matches, nil
}

// Count returns the number of stored records, as reported by the
// collection. Appends through other handles are reflected immediately.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.coll.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count %q: %v", ErrStorageUnavailable, s.name, err)
	}
	return n, nil
}

// embed runs the primary embedder and falls back to the secondary on
// failure. The fallback decision is made independently for every text.
func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.primary.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}
	if s.secondary == nil {
		return nil, err
	}
	log.Printf("memory: %s: primary embedder %s failed (%v), trying %s",
		s.name, s.primary.Name(), err, s.secondary.Name())
	vec, err2 := s.secondary.Embed(ctx, text)
	if err2 != nil {
		return nil, fmt.Errorf("%w: primary: %v, secondary: %v", llm.ErrEmbedding, err, err2)
	}
	return vec, nil
}
