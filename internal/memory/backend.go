package memory

import "context"

// Backend is a vector storage engine that can open named persistent
// collections. Implementations: ChromaBackend (REST) and LocalBackend (files).
type Backend interface {
	// CreateOrOpen returns the collection with the given name, creating it
	// if it does not exist. Opening an existing collection is idempotent.
	CreateOrOpen(ctx context.Context, name string) (Collection, error)
}

// Collection is a single named vector collection.
type Collection interface {
	// Insert stores one record and returns the id the collection assigned
	// to it. Id assignment is atomic within the collection, so concurrent
	// inserts through any number of handles never collide.
	Insert(ctx context.Context, document string, metadata map[string]string, embedding []float32) (string, error)

	// Nearest returns up to k records ordered by increasing distance
	// from the query embedding.
	Nearest(ctx context.Context, embedding []float32, k int) ([]Neighbor, error)

	// Count returns the number of records in the collection.
	Count(ctx context.Context) (int, error)
}

// Neighbor is one nearest-neighbor result from a collection.
type Neighbor struct {
	ID       string
	Document string
	Metadata map[string]string
	Distance float64
}
