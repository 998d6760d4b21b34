package store

import (
	"errors"

	"spacey/pkg/domain"
)

// ErrDuplicateContent is returned when inserting an id that already exists.
var ErrDuplicateContent = errors.New("content already exists")

// ContentQuery filters ListContent. Zero fields are ignored.
type ContentQuery struct {
	UserID     string
	Status     domain.ProcessingStatus
	SourceType domain.SourceType
	Limit      int
}

// ContentStore defines persistence operations for content records.
type ContentStore interface {
	InsertContent(domain.Content) error
	// UpdateContent applies patch and reports whether a record was changed.
	// A patch with IfStatus set only applies while the stored status matches.
	UpdateContent(id string, patch domain.ContentPatch) (bool, error)
	GetContent(id string) (domain.Content, bool, error)
	// ListContent returns matching records, newest first.
	ListContent(ContentQuery) ([]domain.Content, error)
	AppendAnnotation(id string, a domain.Annotation) (domain.Content, bool, error)
}
