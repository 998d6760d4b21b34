package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"spacey/pkg/domain"
)

// MemoryStore keeps content records in-process. Used for tests and
// single-node deployments without Postgres.
type MemoryStore struct {
	mu      sync.RWMutex
	content map[string]domain.Content
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{content: make(map[string]domain.Content)}
}

// InsertContent stores a new record.
func (m *MemoryStore) InsertContent(c domain.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.content[c.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateContent, c.ID)
	}
	m.content[c.ID] = cloneContent(c)
	return nil
}

// UpdateContent applies a conditional patch.
func (m *MemoryStore) UpdateContent(id string, patch domain.ContentPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.content[id]
	if !ok {
		return false, nil
	}
	if patch.IfStatus != "" && c.ProcessingStatus != patch.IfStatus {
		return false, nil
	}
	applyPatch(&c, patch)
	m.content[id] = c
	return true, nil
}

// GetContent retrieves a record by ID.
func (m *MemoryStore) GetContent(id string) (domain.Content, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.content[id]
	if !ok {
		return domain.Content{}, false, nil
	}
	return cloneContent(c), true, nil
}

// ListContent returns matching records, newest first.
func (m *MemoryStore) ListContent(q ContentQuery) ([]domain.Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Content, 0, len(m.content))
	for _, c := range m.content {
		if q.UserID != "" && c.UserID != q.UserID {
			continue
		}
		if q.Status != "" && c.ProcessingStatus != q.Status {
			continue
		}
		if q.SourceType != "" && c.SourceType != q.SourceType {
			continue
		}
		res = append(res, cloneContent(c))
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID > res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if q.Limit > 0 && len(res) > q.Limit {
		res = res[:q.Limit]
	}
	return res, nil
}

// AppendAnnotation adds an annotation regardless of processing status.
func (m *MemoryStore) AppendAnnotation(id string, a domain.Annotation) (domain.Content, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.content[id]
	if !ok {
		return domain.Content{}, false, nil
	}
	c.Annotations = append(append([]domain.Annotation(nil), c.Annotations...), a)
	c.UpdatedAt = a.CreatedAt
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	m.content[id] = c
	return cloneContent(c), true, nil
}

func applyPatch(c *domain.Content, patch domain.ContentPatch) {
	if patch.Title != nil {
		c.Title = domain.Ptr(*patch.Title)
	}
	if patch.Summary != nil {
		c.Summary = domain.Ptr(*patch.Summary)
	}
	if patch.RawText != nil {
		c.RawText = domain.Ptr(*patch.RawText)
	}
	if patch.ViewText != nil {
		c.ViewText = domain.Ptr(*patch.ViewText)
	}
	if patch.StorageRef != nil {
		c.StorageRef = domain.Ptr(*patch.StorageRef)
	}
	if patch.Image != nil {
		c.Image = domain.Ptr(*patch.Image)
	}
	if patch.Source != nil {
		c.Source = domain.Ptr(*patch.Source)
	}
	if patch.ProcessingStatus != nil {
		c.ProcessingStatus = *patch.ProcessingStatus
	}
	c.UpdatedAt = patch.UpdatedAt
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
}

func cloneContent(c domain.Content) domain.Content {
	out := c
	out.Title = clonePtr(c.Title)
	out.Summary = clonePtr(c.Summary)
	out.RawText = clonePtr(c.RawText)
	out.ViewText = clonePtr(c.ViewText)
	out.StorageRef = clonePtr(c.StorageRef)
	out.Image = clonePtr(c.Image)
	out.Source = clonePtr(c.Source)
	out.Annotations = append([]domain.Annotation(nil), c.Annotations...)
	return out
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	return domain.Ptr(*p)
}
