package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/philippgille/chromem-go"
	"spacey/pkg/domain"
)

const defaultCollection = "content_chunks"

var errEmbeddingsPrecomputed = errors.New("chromem collection expects precomputed embeddings")

// ChromemBackend stores chunks in an embedded chromem-go collection.
type ChromemBackend struct {
	collection *chromem.Collection
	// sized runs after each size read in Query; tests use it to shrink the
	// collection in between.
	sized      func()
}

// OpenChromem opens a persistent database at path, or an in-memory one when
// path is empty, and returns a backend over the named collection.
func OpenChromem(path, collection string) (*ChromemBackend, error) {
	var db *chromem.DB
	if strings.TrimSpace(path) == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}
	return NewChromemBackend(db, collection)
}

// NewChromemBackend returns a backend over an existing database.
func NewChromemBackend(db *chromem.DB, collection string) (*ChromemBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: chromem db required", domain.ErrConfiguration)
	}
	if strings.TrimSpace(collection) == "" {
		collection = defaultCollection
	}
	noEmbed := func(context.Context, string) ([]float32, error) {
		return nil, errEmbeddingsPrecomputed
	}
	c, err := db.GetOrCreateCollection(collection, map[string]string{"hnsw:space": "cosine"}, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collection, err)
	}
	return &ChromemBackend{collection: c}, nil
}

// Add stores the records in one call.
func (b *ChromemBackend) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	metadatas := make([]map[string]string, len(records))
	contents := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
		embeddings[i] = r.Embedding
		metadatas[i] = metadataMap(r.Metadata)
		contents[i] = r.Text
	}
	return b.collection.Add(ctx, ids, embeddings, metadatas, contents)
}

// Query runs one chromem query per combination of any-of values and merges
// the results by similarity.
func (b *ChromemBackend) Query(ctx context.Context, embedding []float32, filter Filter, n int) ([]domain.Hit, error) {
	if n <= 0 || filter.MatchesNothing() {
		return []domain.Hit{}, nil
	}
	var merged []chromem.Result
	seen := make(map[string]struct{})
	for _, where := range expandWhere(filter.Conditions()) {
		results, err := b.queryCapped(ctx, embedding, where, n)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			merged = append(merged, r)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if len(merged) > n {
		merged = merged[:n]
	}
	hits := make([]domain.Hit, 0, len(merged))
	for _, r := range merged {
		hits = append(hits, domain.Hit{
			ID:       r.ID,
			Text:     r.Content,
			Metadata: metadataFromMap(r.Metadata),
			Distance: 1 - r.Similarity,
		})
	}
	return hits, nil
}

// queryCapped asks chromem for at most n results. chromem rejects a request
// for more results than the collection holds, so the cap is taken from the
// current size and taken again when a concurrent delete shrank it.
func (b *ChromemBackend) queryCapped(ctx context.Context, embedding []float32, where map[string]string, n int) ([]chromem.Result, error) {
	for attempt := 0; ; attempt++ {
		k := min(n, b.collection.Count())
		if b.sized != nil {
			b.sized()
		}
		if k == 0 {
			return nil, nil
		}
		results, err := b.collection.QueryEmbedding(ctx, embedding, k, where, nil)
		if err == nil {
			return results, nil
		}
		if attempt < 2 && b.collection.Count() < k {
			continue
		}
		return nil, err
	}
}

// Delete removes records by id.
func (b *ChromemBackend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return b.collection.Delete(ctx, nil, nil, ids...)
}

// DeleteBySource removes every record of one source document.
func (b *ChromemBackend) DeleteBySource(ctx context.Context, sourceID string) error {
	if b.collection.Count() == 0 {
		return nil
	}
	return b.collection.Delete(ctx, map[string]string{FieldSourceID: sourceID}, nil)
}

// Count returns the number of stored records.
func (b *ChromemBackend) Count(context.Context) (int, error) {
	return b.collection.Count(), nil
}

// expandWhere turns conditions with any-of values into the set of exact-match
// maps chromem understands. A filter without conditions yields one nil map.
func expandWhere(conds []Condition) []map[string]string {
	out := []map[string]string{nil}
	for _, c := range conds {
		next := make([]map[string]string, 0, len(out)*len(c.Values))
		for _, base := range out {
			for _, v := range c.Values {
				m := make(map[string]string, len(base)+1)
				for k, bv := range base {
					m[k] = bv
				}
				m[c.Field] = v
				next = append(next, m)
			}
		}
		out = next
	}
	return out
}

func metadataMap(meta domain.ChunkMetadata) map[string]string {
	return map[string]string{
		FieldSourceID:   meta.SourceID,
		FieldSourceType: string(meta.SourceType),
		FieldUserID:     meta.UserID,
	}
}

func metadataFromMap(m map[string]string) domain.ChunkMetadata {
	return domain.ChunkMetadata{
		SourceID:   m[FieldSourceID],
		SourceType: domain.SourceType(m[FieldSourceType]),
		UserID:     m[FieldUserID],
	}
}
