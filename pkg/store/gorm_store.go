package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"spacey/pkg/domain"
)

// GormStore implements ContentStore using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := OpenPostgres(dsn)
	if err != nil {
		return nil, err
	}
	return NewGormStoreFromDB(db)
}

// NewGormStoreFromDB migrates and wraps an existing handle.
func NewGormStoreFromDB(db *gorm.DB) (*GormStore, error) {
	if err := WithMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ContentModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// DB exposes the handle so other components can share the pool.
func (s *GormStore) DB() *gorm.DB { return s.db }

// InsertContent stores a new record.
func (s *GormStore) InsertContent(c domain.Content) error {
	model, err := contentToModel(c)
	if err != nil {
		return err
	}
	err = s.db.Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrDuplicateContent, c.ID)
	}
	return err
}

// UpdateContent applies a conditional patch in a single statement.
func (s *GormStore) UpdateContent(id string, patch domain.ContentPatch) (bool, error) {
	values := patchValues(patch)
	tx := s.db.Model(&ContentModel{}).Where("id = ?", id)
	if patch.IfStatus != "" {
		tx = tx.Where("processing_status = ?", string(patch.IfStatus))
	}
	res := tx.Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetContent retrieves a record by ID.
func (s *GormStore) GetContent(id string) (domain.Content, bool, error) {
	var model ContentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Content{}, false, nil
		}
		return domain.Content{}, false, err
	}
	c, err := contentFromModel(model)
	if err != nil {
		return domain.Content{}, false, err
	}
	return c, true, nil
}

// ListContent returns matching records, newest first.
func (s *GormStore) ListContent(q ContentQuery) ([]domain.Content, error) {
	tx := s.db.Order("created_at DESC").Order("id DESC")
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.Status != "" {
		tx = tx.Where("processing_status = ?", string(q.Status))
	}
	if q.SourceType != "" {
		tx = tx.Where("source_type = ?", string(q.SourceType))
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var models []ContentModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Content, 0, len(models))
	for _, model := range models {
		c, err := contentFromModel(model)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

// AppendAnnotation adds an annotation under a row lock.
func (s *GormStore) AppendAnnotation(id string, a domain.Annotation) (domain.Content, bool, error) {
	var out domain.Content
	found := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model ContentModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		c, err := contentFromModel(model)
		if err != nil {
			return err
		}
		c.Annotations = append(c.Annotations, a)
		c.UpdatedAt = a.CreatedAt
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = time.Now().UTC()
		}
		raw, err := json.Marshal(c.Annotations)
		if err != nil {
			return err
		}
		if err := tx.Model(&ContentModel{}).Where("id = ?", id).Updates(map[string]any{
			"annotations": raw,
			"updated_at":  c.UpdatedAt,
		}).Error; err != nil {
			return err
		}
		out, found = c, true
		return nil
	})
	if err != nil {
		return domain.Content{}, false, err
	}
	return out, found, nil
}

func patchValues(patch domain.ContentPatch) map[string]any {
	values := map[string]any{}
	if patch.Title != nil {
		values["title"] = *patch.Title
	}
	if patch.Summary != nil {
		values["summary"] = *patch.Summary
	}
	if patch.RawText != nil {
		values["raw_text"] = *patch.RawText
	}
	if patch.ViewText != nil {
		values["view_text"] = *patch.ViewText
	}
	if patch.StorageRef != nil {
		values["storage_ref"] = *patch.StorageRef
	}
	if patch.Image != nil {
		values["image"] = *patch.Image
	}
	if patch.Source != nil {
		values["source"] = *patch.Source
	}
	if patch.ProcessingStatus != nil {
		values["processing_status"] = string(*patch.ProcessingStatus)
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	values["updated_at"] = updatedAt
	return values
}

func contentToModel(c domain.Content) (ContentModel, error) {
	annotations := c.Annotations
	if annotations == nil {
		annotations = []domain.Annotation{}
	}
	raw, err := json.Marshal(annotations)
	if err != nil {
		return ContentModel{}, fmt.Errorf("encode annotations: %w", err)
	}
	return ContentModel{
		ID:               c.ID,
		UserID:           c.UserID,
		SourceType:       string(c.SourceType),
		ProcessingStatus: string(c.ProcessingStatus),
		Title:            c.Title,
		Summary:          c.Summary,
		RawText:          c.RawText,
		ViewText:         c.ViewText,
		StorageRef:       c.StorageRef,
		Image:            c.Image,
		Source:           c.Source,
		Annotations:      raw,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}, nil
}

func contentFromModel(m ContentModel) (domain.Content, error) {
	var annotations []domain.Annotation
	if len(m.Annotations) > 0 {
		if err := json.Unmarshal(m.Annotations, &annotations); err != nil {
			return domain.Content{}, fmt.Errorf("decode annotations for %s: %w", m.ID, err)
		}
	}
	return domain.Content{
		ID:               m.ID,
		UserID:           m.UserID,
		SourceType:       domain.SourceType(m.SourceType),
		ProcessingStatus: domain.ProcessingStatus(m.ProcessingStatus),
		Title:            m.Title,
		Summary:          m.Summary,
		RawText:          m.RawText,
		ViewText:         m.ViewText,
		StorageRef:       m.StorageRef,
		Image:            m.Image,
		Source:           m.Source,
		Annotations:      annotations,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}, nil
}
