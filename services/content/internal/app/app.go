package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spacey/internal/util"
	"spacey/pkg/domain"
	"spacey/pkg/ingest"
	"spacey/pkg/queue"
	"spacey/pkg/retrieval"
	"spacey/pkg/storage"
	"spacey/pkg/store"
	"spacey/pkg/vectorindex"
)

// Deps are the collaborators of the content service. Build assembles them
// from configuration; tests hand them in directly.
type Deps struct {
	Store      store.ContentStore
	Blobs      storage.BlobStorage
	Index      *vectorindex.Index
	Scheduler  queue.Scheduler
	Extractor  ingest.Extractor
	Summarizer ingest.Summarizer
	Answerer   retrieval.Answerer

	Concurrency   int
	MaxResults    int
	MaxAnswerDocs int
	ArchiveExpiry time.Duration
	Logger        *slog.Logger
	// Closers run in order on Close, after the scheduler has drained.
	Closers []func() error
}

// App is the core application service wiring ingestion and retrieval.
type App struct {
	store         store.ContentStore
	blobs         storage.BlobStorage
	index         *vectorindex.Index
	scheduler     queue.Scheduler
	pipeline      *ingest.Pipeline
	retrieval     *retrieval.Service
	concurrency   int
	archiveExpiry time.Duration
	logger        *slog.Logger
	closers       []func() error
}

// New constructs the application from its collaborators.
func New(deps Deps) (*App, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("%w: content store required", domain.ErrConfiguration)
	}
	if deps.Index == nil {
		return nil, fmt.Errorf("%w: index required", domain.ErrConfiguration)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pipeline, err := ingest.New(ingest.Config{
		Store:      deps.Store,
		Blobs:      deps.Blobs,
		Extractor:  deps.Extractor,
		Summarizer: deps.Summarizer,
		Index:      deps.Index,
		Scheduler:  deps.Scheduler,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	service, err := retrieval.New(retrieval.Config{
		Index:             deps.Index,
		Answerer:          deps.Answerer,
		MaxResults:        deps.MaxResults,
		MaxDocumentChunks: deps.MaxAnswerDocs,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	expiry := deps.ArchiveExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &App{
		store:         deps.Store,
		blobs:         deps.Blobs,
		index:         deps.Index,
		scheduler:     deps.Scheduler,
		pipeline:      pipeline,
		retrieval:     service,
		concurrency:   concurrency,
		archiveExpiry: expiry,
		logger:        logger,
		closers:       deps.Closers,
	}, nil
}

// Start launches background processing.
func (a *App) Start(ctx context.Context) error {
	return a.pipeline.Start(ctx, a.concurrency)
}

// Close drains the scheduler and releases the remaining resources.
func (a *App) Close() error {
	errs := []error{a.scheduler.Close()}
	for _, closeFn := range a.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

// Submit registers a source for background processing and returns the
// placeholder record.
func (a *App) Submit(ctx context.Context, userID string, src domain.Source) (domain.Content, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Content{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if !src.IsBytes() && strings.TrimSpace(src.Text) == "" {
		return domain.Content{}, fmt.Errorf("%w: source required", ErrInvalidInput)
	}
	if src.IsBytes() && len(src.Data) == 0 {
		return domain.Content{}, fmt.Errorf("%w: uploaded file is empty", ErrInvalidInput)
	}
	return a.pipeline.Submit(ctx, src, userID)
}

// ListContent returns the user's records, newest first.
func (a *App) ListContent(userID string, status domain.ProcessingStatus, typ domain.SourceType, limit int) ([]domain.Content, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	items, err := a.store.ListContent(store.ContentQuery{
		UserID:     userID,
		Status:     status,
		SourceType: typ,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	return items, nil
}

// GetContent returns one record owned by userID.
func (a *App) GetContent(userID, id string) (domain.Content, error) {
	content, ok, err := a.store.GetContent(strings.TrimSpace(id))
	if err != nil {
		return domain.Content{}, fmt.Errorf("load content: %w", err)
	}
	if !ok {
		return domain.Content{}, ErrContentNotFound
	}
	if content.UserID != userID {
		return domain.Content{}, ErrForbidden
	}
	return content, nil
}

// Annotate appends a highlight or comment, whatever the processing status.
func (a *App) Annotate(userID, id, quote, comment string) (domain.Content, error) {
	quote = strings.TrimSpace(quote)
	comment = strings.TrimSpace(comment)
	if quote == "" && comment == "" {
		return domain.Content{}, fmt.Errorf("%w: quote or comment required", ErrInvalidInput)
	}
	if _, err := a.GetContent(userID, id); err != nil {
		return domain.Content{}, err
	}
	updated, ok, err := a.store.AppendAnnotation(id, domain.Annotation{
		ID:        util.NewID(),
		Quote:     quote,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Content{}, fmt.Errorf("append annotation: %w", err)
	}
	if !ok {
		return domain.Content{}, ErrContentNotFound
	}
	return updated, nil
}

// Answer answers question from one processed record.
func (a *App) Answer(ctx context.Context, userID, id, question string) (domain.DocumentAnswer, error) {
	if strings.TrimSpace(question) == "" {
		return domain.DocumentAnswer{}, fmt.Errorf("%w: question required", ErrInvalidInput)
	}
	content, err := a.GetContent(userID, id)
	if err != nil {
		return domain.DocumentAnswer{}, err
	}
	if content.ProcessingStatus != domain.StatusProcessed {
		return domain.DocumentAnswer{}, ErrContentNotReady
	}
	return a.retrieval.GetAnswer(ctx, content.ID, question, userID)
}

// Search queries the user's content across the requested source types.
func (a *App) Search(ctx context.Context, userID, query string, types []domain.SourceType) (domain.SearchResult, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.SearchResult{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if strings.TrimSpace(query) == "" {
		return domain.SearchResult{}, fmt.Errorf("%w: query required", ErrInvalidInput)
	}
	return a.retrieval.Search(ctx, query, userID, types)
}

// ArchiveURL returns a time-limited download URL for the archived document.
func (a *App) ArchiveURL(ctx context.Context, userID, id string) (string, error) {
	content, err := a.GetContent(userID, id)
	if err != nil {
		return "", err
	}
	presigner, ok := a.blobs.(storage.Presigner)
	if !ok || content.StorageRef == nil || *content.StorageRef == "" {
		return "", ErrArchiveUnavailable
	}
	return presigner.PresignGet(ctx, *content.StorageRef, a.archiveExpiry)
}

// GetJob returns queue-level job status when the scheduler tracks it.
func (a *App) GetJob(ctx context.Context, userID, id string) (queue.JobStatus, error) {
	tracker, ok := a.scheduler.(*queue.RedisJobQueue)
	if !ok {
		return queue.JobStatus{}, ErrJobsUnavailable
	}
	if _, err := a.GetContent(userID, id); err != nil {
		return queue.JobStatus{}, err
	}
	status, found, err := tracker.GetJob(ctx, id)
	if err != nil {
		return queue.JobStatus{}, err
	}
	if !found {
		return queue.JobStatus{}, ErrContentNotFound
	}
	return status, nil
}

// Reindex rebuilds the index from processed records.
func (a *App) Reindex(ctx context.Context, userID string) (ingest.ReindexReport, error) {
	return a.pipeline.Reindex(ctx, userID)
}
