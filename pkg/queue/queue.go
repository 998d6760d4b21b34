package queue

import (
	"context"
	"errors"

	"spacey/pkg/domain"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// Job is one background ingestion request. PDF uploads carry their bytes in
// Data; URL and DOI submissions carry the locator.
type Job struct {
	ID         string            `json:"id"`
	ContentID  string            `json:"contentId"`
	UserID     string            `json:"userId"`
	SourceType domain.SourceType `json:"sourceType"`
	Data       []byte            `json:"data,omitempty"`
	Locator    string            `json:"locator,omitempty"`
}

// Source rebuilds the submitted source.
func (j Job) Source() domain.Source {
	if j.SourceType == domain.SourcePDF {
		data := j.Data
		if data == nil {
			data = []byte{}
		}
		return domain.SourceFromBytes(data)
	}
	return domain.SourceFromString(j.Locator)
}

// JobFor builds the job for a submitted source.
func JobFor(contentID, userID string, typ domain.SourceType, src domain.Source) Job {
	job := Job{ID: contentID, ContentID: contentID, UserID: userID, SourceType: typ}
	if src.IsBytes() {
		job.Data = src.Data
	} else {
		job.Locator = src.Text
	}
	return job
}

// Handler processes one job. A non-nil error asks durable queues to retry.
type Handler func(ctx context.Context, job Job) error

// Scheduler runs ingestion jobs in the background.
type Scheduler interface {
	Enqueue(ctx context.Context, job Job) error
	// Start launches concurrency workers that call handler for every job.
	Start(ctx context.Context, concurrency int, handler Handler) error
	// Close stops accepting jobs and waits for in-flight handlers.
	Close() error
}
