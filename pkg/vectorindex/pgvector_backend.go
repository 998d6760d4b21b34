package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"spacey/pkg/domain"
	"spacey/pkg/store"
)

// ChunkModel is the row layout of the index_chunks table. Metadata lives in
// typed columns so filters compile to plain indexed predicates.
type ChunkModel struct {
	ID         string          `gorm:"primaryKey"`
	Text       string          `gorm:"type:text;not null"`
	SourceID   string          `gorm:"not null;index"`
	SourceType string          `gorm:"not null;index"`
	UserID     string          `gorm:"not null;index"`
	Embedding  pgvector.Vector `gorm:"type:vector"`
	CreatedAt  time.Time       `gorm:"not null"`
}

func (ChunkModel) TableName() string { return "index_chunks" }

type chunkHit struct {
	ID         string
	Text       string
	SourceID   string
	SourceType string
	UserID     string
	Distance   float64
}

// PGVectorBackend stores chunks in Postgres using the pgvector extension and
// ranks them by cosine distance.
type PGVectorBackend struct {
	db  *gorm.DB
	dim int
}

// NewPGVectorBackend migrates index_chunks with an embedding column of dim
// dimensions.
func NewPGVectorBackend(db *gorm.DB, dim int) (*PGVectorBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db required", domain.ErrConfiguration)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: embedding dim must be > 0", domain.ErrConfiguration)
	}
	if err := store.WithMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&ChunkModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf("ALTER TABLE index_chunks ALTER COLUMN embedding TYPE vector(%d)", dim)).Error; err != nil {
			return fmt.Errorf("alter chunk embedding type: %w", err)
		}
		if err := tx.Exec("CREATE INDEX IF NOT EXISTS index_chunks_embedding_hnsw ON index_chunks USING hnsw (embedding vector_cosine_ops)").Error; err != nil {
			return fmt.Errorf("create embedding index: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &PGVectorBackend{db: db, dim: dim}, nil
}

// Add inserts all records in one transaction.
func (b *PGVectorBackend) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	models := make([]ChunkModel, 0, len(records))
	for _, r := range records {
		if len(r.Embedding) != b.dim {
			return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(r.Embedding), b.dim)
		}
		models = append(models, ChunkModel{
			ID:         r.ID,
			Text:       r.Text,
			SourceID:   r.Metadata.SourceID,
			SourceType: string(r.Metadata.SourceType),
			UserID:     r.Metadata.UserID,
			Embedding:  pgvector.NewVector(r.Embedding),
			CreatedAt:  now,
		})
	}
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&models, 200).Error
	})
}

// Query ranks matching chunks by cosine distance to embedding.
func (b *PGVectorBackend) Query(ctx context.Context, embedding []float32, filter Filter, n int) ([]domain.Hit, error) {
	if n <= 0 || filter.MatchesNothing() {
		return []domain.Hit{}, nil
	}
	if len(embedding) != b.dim {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), b.dim)
	}
	q := b.db.WithContext(ctx).Model(&ChunkModel{}).
		Select("id, text, source_id, source_type, user_id, embedding <=> ? AS distance", pgvector.NewVector(embedding))
	if where := composeWhere(filter.Conditions()); where != nil {
		q = q.Where(where)
	}
	var rows []chunkHit
	if err := q.Order("distance ASC").Limit(n).Scan(&rows).Error; err != nil {
		return nil, err
	}
	hits := make([]domain.Hit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, domain.Hit{
			ID:   row.ID,
			Text: row.Text,
			Metadata: domain.ChunkMetadata{
				SourceID:   row.SourceID,
				SourceType: domain.SourceType(row.SourceType),
				UserID:     row.UserID,
			},
			Distance: float32(row.Distance),
		})
	}
	return hits, nil
}

// Delete removes records by id.
func (b *PGVectorBackend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return b.db.WithContext(ctx).Where("id IN ?", ids).Delete(&ChunkModel{}).Error
}

// DeleteBySource removes every chunk of one source document.
func (b *PGVectorBackend) DeleteBySource(ctx context.Context, sourceID string) error {
	return b.db.WithContext(ctx).Where("source_id = ?", sourceID).Delete(&ChunkModel{}).Error
}

// Count returns the number of stored chunks.
func (b *PGVectorBackend) Count(ctx context.Context) (int, error) {
	var n int64
	if err := b.db.WithContext(ctx).Model(&ChunkModel{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// composeWhere builds the SQL predicate for a filter. A single condition is
// returned as is; several are combined under an explicit AND.
func composeWhere(conds []Condition) clause.Expression {
	exprs := make([]clause.Expression, 0, len(conds))
	for _, c := range conds {
		col := clause.Column{Name: c.Field}
		if len(c.Values) == 1 {
			exprs = append(exprs, clause.Eq{Column: col, Value: c.Values[0]})
			continue
		}
		values := make([]any, 0, len(c.Values))
		for _, v := range c.Values {
			values = append(values, v)
		}
		exprs = append(exprs, clause.IN{Column: col, Values: values})
	}
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	default:
		return clause.AndConditions{Exprs: exprs}
	}
}
