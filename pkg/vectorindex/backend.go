package vectorindex

import (
	"context"

	"spacey/pkg/domain"
)

// Record is one embedded chunk as handed to a backend.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  domain.ChunkMetadata
}

// Backend persists records and answers nearest-neighbour queries.
// Query must return hits ordered by ascending distance and must return an
// empty slice, not an error, when nothing is stored.
type Backend interface {
	Add(ctx context.Context, records []Record) error
	Query(ctx context.Context, embedding []float32, filter Filter, n int) ([]domain.Hit, error)
	Delete(ctx context.Context, ids []string) error
	DeleteBySource(ctx context.Context, sourceID string) error
	Count(ctx context.Context) (int, error)
}
