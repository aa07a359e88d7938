package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/seenimoa/tradeswarm/internal/llm"
)

// fakeEmbedder maps known texts to fixed vectors and everything else to a
// distinct default direction. failOn forces errors for specific texts.
type fakeEmbedder struct {
	name    string
	vectors map[string][]float32
	failOn  map[string]bool
	mu      sync.Mutex
	calls   []string
}

func (f *fakeEmbedder) Name() string { return f.name }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.failOn[text] {
		return nil, fmt.Errorf("%w: forced failure", llm.ErrEmbedding)
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	// Deterministic non-degenerate default
	return []float32{1, float32(len(text) % 7), 0.5}, nil
}

func newTestStore(t *testing.T, name string) *Store {
	t.Helper()
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store, err := Open(context.Background(), name, Config{
		Backend: backend,
		Primary: &fakeEmbedder{name: "fake"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func mustCount(t *testing.T, store *Store) int {
	t.Helper()
	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// ── Append ──

func TestAppendAndCount(t *testing.T) {
	store := newTestStore(t, "bull_memory")

	n, err := store.Append(context.Background(), []Pair{
		{Situation: "tech rally broadening", Recommendation: "BUY"},
		{Situation: "volume fading at resistance", Recommendation: "HOLD"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("inserted: got %d, want 2", n)
	}
	if got := mustCount(t, store); got != 2 {
		t.Fatalf("count: got %d, want 2", got)
	}
}

func TestAppendSkipsEmptyPairs(t *testing.T) {
	store := newTestStore(t, "trader_memory")

	n, err := store.Append(context.Background(), []Pair{
		{Situation: "", Recommendation: "BUY"},
		{Situation: "valid situation", Recommendation: ""},
		{Situation: "valid situation", Recommendation: "SELL"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("inserted: got %d, want 1", n)
	}
	if got := mustCount(t, store); got != 1 {
		t.Fatalf("count: got %d, want 1", got)
	}
}

func TestAppendIsolatesEmbeddingFailures(t *testing.T) {
	backend, _ := NewLocalBackend(t.TempDir())
	store, err := Open(context.Background(), "bear_memory", Config{
		Backend: backend,
		Primary: &fakeEmbedder{name: "fake", failOn: map[string]bool{"poison": true}},
	})
	if err != nil {
		t.Fatal(err)
	}

	n, err := store.Append(context.Background(), []Pair{
		{Situation: "good one", Recommendation: "HOLD"},
		{Situation: "poison", Recommendation: "SELL"},
		{Situation: "another good one", Recommendation: "BUY"},
	})
	if err != nil {
		t.Fatalf("embedding failure should not abort the batch: %v", err)
	}
	if n != 2 {
		t.Fatalf("inserted: got %d, want 2", n)
	}
}

func TestConcurrentAppendIDsAreUnique(t *testing.T) {
	store := newTestStore(t, "risk_manager_memory")

	const workers = 8
	const perWorker = 5
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := store.Append(context.Background(), []Pair{
					{Situation: fmt.Sprintf("situation %d-%d", w, i), Recommendation: "HOLD"},
				})
				if err != nil {
					t.Errorf("append: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	if got := mustCount(t, store); got != workers*perWorker {
		t.Fatalf("count: got %d, want %d", got, workers*perWorker)
	}

	// All stored ids must be distinct integers 0..N-1
	coll, _ := store.coll.(*localCollection)
	seen := make(map[string]bool)
	for _, r := range coll.records {
		if seen[r.ID] {
			t.Fatalf("duplicate id %q", r.ID)
		}
		seen[r.ID] = true
		n, err := strconv.Atoi(r.ID)
		if err != nil || n < 0 || n >= workers*perWorker {
			t.Fatalf("unexpected id %q", r.ID)
		}
	}
}

func TestConcurrentAppendsAcrossHandlesAssignDistinctIDs(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{Backend: backend, Primary: &fakeEmbedder{name: "fake"}}

	// Two independent handles over the same collection
	storeA, err := Open(context.Background(), "shared_memory", cfg)
	if err != nil {
		t.Fatal(err)
	}
	storeB, err := Open(context.Background(), "shared_memory", cfg)
	if err != nil {
		t.Fatal(err)
	}

	const perHandle = 5
	var wg sync.WaitGroup
	for h, store := range []*Store{storeA, storeB} {
		wg.Add(1)
		go func(h int, store *Store) {
			defer wg.Done()
			for i := 0; i < perHandle; i++ {
				_, err := store.Append(context.Background(), []Pair{
					{Situation: fmt.Sprintf("situation %d-%d", h, i), Recommendation: "HOLD"},
				})
				if err != nil {
					t.Errorf("append: %v", err)
				}
			}
		}(h, store)
	}
	wg.Wait()

	want := 2 * perHandle
	if got := mustCount(t, storeA); got != want {
		t.Fatalf("count via handle A: got %d, want %d", got, want)
	}
	if got := mustCount(t, storeB); got != want {
		t.Fatalf("count via handle B: got %d, want %d", got, want)
	}

	// Ids across both handles must be distinct integers 0..N-1
	coll, _ := storeA.coll.(*localCollection)
	seen := make(map[string]bool)
	for _, r := range coll.records {
		if seen[r.ID] {
			t.Fatalf("duplicate id %q across handles", r.ID)
		}
		seen[r.ID] = true
		n, err := strconv.Atoi(r.ID)
		if err != nil || n < 0 || n >= want {
			t.Fatalf("unexpected id %q", r.ID)
		}
	}
	if len(seen) != want {
		t.Fatalf("distinct ids: got %d, want %d", len(seen), want)
	}
}

func TestQuerySeesAppendsFromOtherHandle(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{Backend: backend, Primary: &fakeEmbedder{name: "fake"}}

	// Reader opened while the collection is still empty
	writer, err := Open(context.Background(), "bull_memory", cfg)
	if err != nil {
		t.Fatal(err)
	}
	reader, err := Open(context.Background(), "bull_memory", cfg)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := writer.Append(context.Background(), []Pair{
		{Situation: "breadth improving off the lows", Recommendation: "BUY"},
		{Situation: "credit spreads widening", Recommendation: "SELL"},
	}); err != nil {
		t.Fatal(err)
	}

	matches, err := reader.Query(context.Background(), "breadth improving off the lows", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("reader should see writer's records: got %d matches, want 2", len(matches))
	}
	if got := mustCount(t, reader); got != 2 {
		t.Fatalf("count via reader: got %d, want 2", got)
	}
}

// ── Query ──

func TestQueryEmptyCollection(t *testing.T) {
	store := newTestStore(t, "invest_judge_memory")

	matches, err := store.Query(context.Background(), "anything", 3)
	if err != nil {
		t.Fatal(err)
	}
	if matches == nil || len(matches) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", matches)
	}
}

func TestQueryBoundsAndOrdering(t *testing.T) {
	backend, _ := NewLocalBackend(t.TempDir())
	emb := &fakeEmbedder{
		name: "fake",
		vectors: map[string][]float32{
			"query":  {1, 0, 0},
			"close":  {0.9, 0.1, 0},
			"medium": {0.5, 0.5, 0},
			"far":    {0, 1, 0},
		},
	}
	store, err := Open(context.Background(), "bull_memory", Config{Backend: backend, Primary: emb})
	if err != nil {
		t.Fatal(err)
	}

	_, err = store.Append(context.Background(), []Pair{
		{Situation: "far", Recommendation: "SELL"},
		{Situation: "close", Recommendation: "BUY"},
		{Situation: "medium", Recommendation: "HOLD"},
	})
	if err != nil {
		t.Fatal(err)
	}

	matches, err := store.Query(context.Background(), "query", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].MatchedSituation != "close" || matches[0].Recommendation != "BUY" {
		t.Fatalf("nearest match wrong: %+v", matches[0])
	}
	if matches[0].SimilarityScore < matches[1].SimilarityScore {
		t.Fatalf("matches not ordered by non-increasing score: %v", matches)
	}

	// k larger than collection returns everything
	matches, err = store.Query(context.Background(), "query", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected all 3 matches, got %d", len(matches))
	}
}

func TestQuerySelfMatchScoresNearOne(t *testing.T) {
	backend, _ := NewLocalBackend(t.TempDir())
	emb := &fakeEmbedder{
		name: "fake",
		vectors: map[string][]float32{
			"NVDA breaking out of consolidation on strong volume": {0.3, 0.8, 0.5},
			"unrelated macro inflation commentary":                {1, 0.1, 0},
		},
	}
	store, err := Open(context.Background(), "bull_memory", Config{Backend: backend, Primary: emb})
	if err != nil {
		t.Fatal(err)
	}

	situation := "NVDA breaking out of consolidation on strong volume"
	if _, err := store.Append(context.Background(), []Pair{
		{Situation: situation, Recommendation: "momentum favors adding on pullbacks"},
	}); err != nil {
		t.Fatal(err)
	}

	matches, err := store.Query(context.Background(), situation, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].SimilarityScore < 0.999 {
		t.Fatalf("self-match score should be ~1.0, got %f", matches[0].SimilarityScore)
	}
	if matches[0].Recommendation != "momentum favors adding on pullbacks" {
		t.Fatalf("recommendation mismatch: %q", matches[0].Recommendation)
	}

	// An unrelated situation still matches the only record, but scores
	// well below the self-match.
	unrelated, err := store.Query(context.Background(), "unrelated macro inflation commentary", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(unrelated) != 1 {
		t.Fatalf("expected 1 match, got %d", len(unrelated))
	}
	if unrelated[0].SimilarityScore >= matches[0].SimilarityScore {
		t.Fatalf("unrelated query should score below the self-match: %f >= %f",
			unrelated[0].SimilarityScore, matches[0].SimilarityScore)
	}
}

// ── Embedding fallback ──

func TestEmbedFallsBackToSecondary(t *testing.T) {
	backend, _ := NewLocalBackend(t.TempDir())
	primary := &fakeEmbedder{name: "primary", failOn: map[string]bool{"hard text": true}}
	secondary := &fakeEmbedder{name: "secondary"}
	store, err := Open(context.Background(), "trader_memory", Config{
		Backend:   backend,
		Primary:   primary,
		Secondary: secondary,
	})
	if err != nil {
		t.Fatal(err)
	}

	n, err := store.Append(context.Background(), []Pair{
		{Situation: "hard text", Recommendation: "HOLD"},
		{Situation: "easy text", Recommendation: "BUY"},
	})
	if err != nil || n != 2 {
		t.Fatalf("append with fallback: n=%d err=%v", n, err)
	}

	// Secondary used only for the failing text
	secondary.mu.Lock()
	defer secondary.mu.Unlock()
	if len(secondary.calls) != 1 || secondary.calls[0] != "hard text" {
		t.Fatalf("secondary calls: %v", secondary.calls)
	}
}

func TestEmbedBothFailPropagates(t *testing.T) {
	backend, _ := NewLocalBackend(t.TempDir())
	primary := &fakeEmbedder{name: "primary", failOn: map[string]bool{"q": true}}
	secondary := &fakeEmbedder{name: "secondary", failOn: map[string]bool{"q": true}}
	store, err := Open(context.Background(), "bear_memory", Config{
		Backend:   backend,
		Primary:   primary,
		Secondary: secondary,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append(context.Background(), []Pair{{Situation: "seed", Recommendation: "HOLD"}}); err != nil {
		t.Fatal(err)
	}

	_, err = store.Query(context.Background(), "q", 1)
	if !errors.Is(err, llm.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got: %v", err)
	}
}

// ── Persistence ──

func TestLocalBackendSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	emb := &fakeEmbedder{name: "fake"}

	backend, _ := NewLocalBackend(dir)
	store, err := Open(context.Background(), "bull_memory", Config{Backend: backend, Primary: emb})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append(context.Background(), []Pair{
		{Situation: "persisted situation", Recommendation: "BUY"},
	}); err != nil {
		t.Fatal(err)
	}

	// Fresh backend over the same directory
	backend2, _ := NewLocalBackend(dir)
	store2, err := Open(context.Background(), "bull_memory", Config{Backend: backend2, Primary: emb})
	if err != nil {
		t.Fatal(err)
	}
	if got := mustCount(t, store2); got != 1 {
		t.Fatalf("count after reopen: got %d, want 1", got)
	}
	matches, err := store2.Query(context.Background(), "persisted situation", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Recommendation != "BUY" {
		t.Fatalf("unexpected matches after reopen: %v", matches)
	}
}

func TestOpenMissingBackend(t *testing.T) {
	_, err := Open(context.Background(), "x", Config{Primary: &fakeEmbedder{name: "fake"}})
	if err == nil {
		t.Fatal("expected error without backend")
	}
}

// ── Chroma backend ──

func TestChromaBackendRoundTrip(t *testing.T) {
	var added chromaAddRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/collections":
			var req chromaCreateRequest
			json.NewDecoder(r.Body).Decode(&req)
			if !req.GetOrCreate {
				t.Error("expected get_or_create")
			}
			if req.Metadata["hnsw:space"] != "cosine" {
				t.Errorf("expected cosine space, got %v", req.Metadata)
			}
			json.NewEncoder(w).Encode(chromaCollectionResponse{ID: "col-1", Name: req.Name})

		case strings.HasSuffix(r.URL.Path, "/add"):
			json.NewDecoder(r.Body).Decode(&added)
			w.Write([]byte("true"))

		case strings.HasSuffix(r.URL.Path, "/count"):
			fmt.Fprint(w, len(added.IDs))

		case strings.HasSuffix(r.URL.Path, "/query"):
			json.NewEncoder(w).Encode(chromaQueryResponse{
				IDs:       [][]string{{"0"}},
				Documents: [][]string{{"stored situation"}},
				Metadatas: [][]map[string]string{{{"recommendation": "HOLD"}}},
				Distances: [][]float64{{0.25}},
			})

		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	backend, err := NewChromaBackend(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	coll, err := backend.CreateOrOpen(context.Background(), "bull_memory")
	if err != nil {
		t.Fatal(err)
	}

	id, err := coll.Insert(context.Background(), "stored situation",
		map[string]string{"recommendation": "HOLD"}, []float32{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if id != "0" {
		t.Fatalf("first id should follow the server-side count: got %q", id)
	}
	if added.IDs[0] != "0" || added.Documents[0] != "stored situation" {
		t.Fatalf("unexpected add payload: %+v", added)
	}

	count, err := coll.Count(context.Background())
	if err != nil || count != 1 {
		t.Fatalf("count: got %d, err=%v", count, err)
	}

	neighbors, err := coll.Nearest(context.Background(), []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(neighbors) != 1 || neighbors[0].Distance != 0.25 {
		t.Fatalf("unexpected neighbors: %+v", neighbors)
	}
	if neighbors[0].Metadata["recommendation"] != "HOLD" {
		t.Fatalf("metadata lost: %+v", neighbors[0])
	}
}

func TestChromaBackendUnavailable(t *testing.T) {
	backend, _ := NewChromaBackend("http://127.0.0.1:1")
	_, err := backend.CreateOrOpen(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error against closed port")
	}
	_, err = Open(context.Background(), "x", Config{
		Backend: backend,
		Primary: &fakeEmbedder{name: "fake"},
	})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got: %v", err)
	}
}

// ── Tools ──

func TestGetMemoriesTool(t *testing.T) {
	store := newTestStore(t, "bull_memory")
	if _, err := store.Append(context.Background(), []Pair{
		{Situation: "semis leading the tape", Recommendation: "stay long"},
	}); err != nil {
		t.Fatal(err)
	}

	tool := GetMemoriesTool(store, 2)
	if tool.Name != "get_memories" {
		t.Fatalf("tool name: %q", tool.Name)
	}

	out, err := tool.Handler(context.Background(), json.RawMessage(`{"situation":"semis leading the tape","n_matches":1}`))
	if err != nil {
		t.Fatal(err)
	}
	var matches []Match
	if err := json.Unmarshal([]byte(out), &matches); err != nil {
		t.Fatalf("tool output not JSON: %v", err)
	}
	if len(matches) != 1 || matches[0].Recommendation != "stay long" {
		t.Fatalf("unexpected matches: %v", matches)
	}
}

func TestAddMemoriesTool(t *testing.T) {
	store := newTestStore(t, "trader_memory")
	tool := AddMemoriesTool(store)

	out, err := tool.Handler(context.Background(),
		json.RawMessage(`{"pairs":[{"situation":"gap up on earnings","recommendation":"trim into strength"},{"situation":"","recommendation":"x"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "stored 1") {
		t.Fatalf("unexpected tool output: %q", out)
	}
	if got := mustCount(t, store); got != 1 {
		t.Fatalf("count: got %d, want 1", got)
	}
}
