package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"spacey/pkg/ai"
	"spacey/pkg/domain"
	"spacey/pkg/textsplit"
)

const (
	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

// Options tunes embedding fan-out.
type Options struct {
	// BatchSize is the number of chunks sent per embedding call when the
	// embedder supports batching.
	BatchSize int
	// Concurrency bounds the number of embedding calls in flight per document.
	Concurrency int
	// Dimensions rejects embeddings of a different length when > 0.
	Dimensions int
}

// Index chunks documents, embeds every chunk and stores it with its metadata.
type Index struct {
	chunker  *textsplit.Chunker
	embedder ai.Embedder
	backend  Backend
	opts     Options
}

// New wires an index from its collaborators.
func New(chunker *textsplit.Chunker, embedder ai.Embedder, backend Backend, opts Options) (*Index, error) {
	if chunker == nil {
		return nil, fmt.Errorf("%w: chunker required", domain.ErrConfiguration)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", domain.ErrConfiguration)
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: backend required", domain.ErrConfiguration)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Index{chunker: chunker, embedder: embedder, backend: backend, opts: opts}, nil
}

// Document pairs a text with the metadata copied onto each of its chunks.
type Document struct {
	Text     string
	Metadata domain.ChunkMetadata
}

// InsertDocument chunks text, embeds every chunk and stores the result.
// All embeddings are computed before anything is written, so an embedder
// failure leaves the index untouched for this document.
func (x *Index) InsertDocument(ctx context.Context, text string, meta domain.ChunkMetadata) (int, error) {
	if strings.TrimSpace(meta.SourceID) == "" {
		return 0, fmt.Errorf("%w: source id required", domain.ErrIndexing)
	}
	chunks := x.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, nil
	}
	embeddings, err := x.embedAll(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrIndexing, err)
	}
	records := make([]Record, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = uuid.NewString()
		records[i] = Record{ID: ids[i], Text: chunk, Embedding: embeddings[i], Metadata: meta}
	}
	if err := x.backend.Add(ctx, records); err != nil {
		if derr := x.backend.Delete(context.WithoutCancel(ctx), ids); derr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", derr))
		}
		return 0, fmt.Errorf("%w: %w", domain.ErrIndexing, err)
	}
	return len(records), nil
}

// InsertDocuments inserts each document in order. It stops at the first
// failure; documents inserted before it stay indexed.
func (x *Index) InsertDocuments(ctx context.Context, docs []Document) (int, error) {
	total := 0
	for i, doc := range docs {
		n, err := x.InsertDocument(ctx, doc.Text, doc.Metadata)
		if err != nil {
			return total, fmt.Errorf("document %d: %w", i, err)
		}
		total += n
	}
	return total, nil
}

// Query returns up to maxResults chunks nearest to text that satisfy filter,
// ordered by ascending distance.
func (x *Index) Query(ctx context.Context, text string, filter Filter, maxResults int) ([]domain.Hit, error) {
	if maxResults <= 0 || filter.MatchesNothing() {
		return []domain.Hit{}, nil
	}
	count, err := x.backend.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrQuery, err)
	}
	if count == 0 {
		return []domain.Hit{}, nil
	}
	embedding, err := x.embedder.EmbedText(ctx, text, taskQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrQuery, err)
	}
	if err := x.checkDim(embedding); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrQuery, err)
	}
	hits, err := x.backend.Query(ctx, embedding, filter, maxResults)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrQuery, err)
	}
	if hits == nil {
		hits = []domain.Hit{}
	}
	return hits, nil
}

// RemoveDocument deletes every chunk derived from sourceID.
func (x *Index) RemoveDocument(ctx context.Context, sourceID string) error {
	if strings.TrimSpace(sourceID) == "" {
		return fmt.Errorf("%w: source id required", domain.ErrIndexing)
	}
	if err := x.backend.DeleteBySource(ctx, sourceID); err != nil {
		return fmt.Errorf("%w: remove %s: %w", domain.ErrIndexing, sourceID, err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (x *Index) Count(ctx context.Context) (int, error) {
	return x.backend.Count(ctx)
}

func (x *Index) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	out := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.opts.Concurrency)
	for start := 0; start < len(chunks); start += x.opts.BatchSize {
		end := start + x.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		lo, hi := start, end
		g.Go(func() error {
			return x.embedBatch(gctx, chunks[lo:hi], out[lo:hi])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (x *Index) embedBatch(ctx context.Context, texts []string, dst [][]float32) error {
	if embedder, ok := x.embedder.(ai.BatchEmbedder); ok && len(texts) > 1 {
		embeddings, err := embedder.EmbedTexts(ctx, texts, taskDocument)
		if err != nil {
			return err
		}
		if len(embeddings) != len(texts) {
			return fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(texts))
		}
		for i, embedding := range embeddings {
			if err := x.checkDim(embedding); err != nil {
				return err
			}
			dst[i] = embedding
		}
		return nil
	}
	for i, text := range texts {
		embedding, err := x.embedder.EmbedText(ctx, text, taskDocument)
		if err != nil {
			return err
		}
		if err := x.checkDim(embedding); err != nil {
			return err
		}
		dst[i] = embedding
	}
	return nil
}

func (x *Index) checkDim(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	if x.opts.Dimensions > 0 && len(embedding) != x.opts.Dimensions {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), x.opts.Dimensions)
	}
	return nil
}
