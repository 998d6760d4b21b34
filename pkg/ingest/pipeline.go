package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spacey/internal/util"
	"spacey/pkg/ai"
	"spacey/pkg/domain"
	"spacey/pkg/extract"
	"spacey/pkg/queue"
	"spacey/pkg/storage"
	"spacey/pkg/store"
)

// Extractor turns a submitted source into text.
type Extractor interface {
	Extract(ctx context.Context, typ domain.SourceType, src domain.Source) (extract.Result, error)
}

// Summarizer condenses a document's readable text.
type Summarizer interface {
	Summarize(ctx context.Context, text, userID string) (string, error)
}

// Index is the part of the vector index the pipeline writes to.
type Index interface {
	InsertDocument(ctx context.Context, text string, meta domain.ChunkMetadata) (int, error)
	RemoveDocument(ctx context.Context, sourceID string) error
}

// Config wires a Pipeline. Blobs is optional; without it archives are not
// kept and records carry no storage_ref.
type Config struct {
	Store      store.ContentStore
	Blobs      storage.BlobStorage
	Extractor  Extractor
	Summarizer Summarizer
	Index      Index
	Scheduler  queue.Scheduler
	Logger     *slog.Logger
	Now        func() time.Time
}

// Pipeline turns submitted sources into processed, indexed content records.
type Pipeline struct {
	store      store.ContentStore
	blobs      storage.BlobStorage
	extractor  Extractor
	summarizer Summarizer
	index      Index
	scheduler  queue.Scheduler
	logger     *slog.Logger
	now        func() time.Time
}

// New validates cfg and builds a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("%w: content store required", domain.ErrConfiguration)
	case cfg.Extractor == nil:
		return nil, fmt.Errorf("%w: extractor required", domain.ErrConfiguration)
	case cfg.Summarizer == nil:
		return nil, fmt.Errorf("%w: summarizer required", domain.ErrConfiguration)
	case cfg.Index == nil:
		return nil, fmt.Errorf("%w: index required", domain.ErrConfiguration)
	case cfg.Scheduler == nil:
		return nil, fmt.Errorf("%w: scheduler required", domain.ErrConfiguration)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Pipeline{
		store:      cfg.Store,
		blobs:      cfg.Blobs,
		extractor:  cfg.Extractor,
		summarizer: cfg.Summarizer,
		index:      cfg.Index,
		scheduler:  cfg.Scheduler,
		logger:     logger,
		now:        now,
	}, nil
}

// Start runs background processing with at most concurrency jobs in flight.
func (p *Pipeline) Start(ctx context.Context, concurrency int) error {
	return p.scheduler.Start(ctx, concurrency, p.Handle)
}

// Submit classifies src, stores a placeholder record in the processing state
// and schedules extraction. It returns that placeholder as soon as the job is
// queued, whatever state the job reaches afterwards.
func (p *Pipeline) Submit(ctx context.Context, src domain.Source, userID string) (domain.Content, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Content{}, errors.New("user id required")
	}
	if src.IsBytes() {
		if len(src.Data) == 0 {
			return domain.Content{}, errors.New("uploaded file is empty")
		}
	} else if strings.TrimSpace(src.Text) == "" {
		return domain.Content{}, errors.New("source required")
	}

	typ := domain.ClassifySource(src)
	now := p.now()
	record := domain.Content{
		ID:               util.NewID(),
		UserID:           userID,
		SourceType:       typ,
		ProcessingStatus: domain.StatusProcessing,
		Annotations:      []domain.Annotation{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if !src.IsBytes() {
		record.Source = domain.Ptr(src.Text)
	}
	if err := p.store.InsertContent(record); err != nil {
		return domain.Content{}, fmt.Errorf("store placeholder: %w", err)
	}

	if err := p.scheduler.Enqueue(ctx, queue.JobFor(record.ID, userID, typ, src)); err != nil {
		// The record would otherwise stay in processing forever.
		if _, ferr := p.store.UpdateContent(record.ID, failedPatch(p.now())); ferr != nil {
			err = errors.Join(err, fmt.Errorf("mark failed: %w", ferr))
		}
		return domain.Content{}, fmt.Errorf("schedule %s: %w", record.ID, err)
	}
	p.logger.Info("content submitted", "content_id", record.ID, "user_id", userID, "source_type", typ)
	return record, nil
}

// Handle processes one scheduled job through to its terminal write. Processing
// failures end in the failed status and are not returned; only a failed
// terminal write is reported so durable queues can retry it.
func (p *Pipeline) Handle(ctx context.Context, job queue.Job) error {
	log := p.logger.With("content_id", job.ContentID, "user_id", job.UserID, "source_type", job.SourceType)
	ctx = util.ContextWithLogger(ctx, log)

	record, ok, err := p.store.GetContent(job.ContentID)
	if err != nil {
		return fmt.Errorf("load %s: %w", job.ContentID, err)
	}
	if !ok {
		log.Warn("content record missing, dropping job")
		return nil
	}
	if record.ProcessingStatus.Terminal() {
		log.Info("content already terminal, skipping", "status", record.ProcessingStatus)
		return nil
	}

	start := time.Now()
	out := p.process(ctx, job)
	if err := p.finalize(ctx, job, out); err != nil {
		return err
	}
	if out.err != nil {
		log.Warn("content processing failed", "err", out.err, "duration_ms", time.Since(start).Milliseconds())
		return nil
	}
	log.Info("content processed", "chunks", out.chunks, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// process runs the extraction, archive, summary and index steps in order and
// reports the first failure.
func (p *Pipeline) process(ctx context.Context, job queue.Job) outcome {
	res, err := p.extractor.Extract(ctx, job.SourceType, job.Source())
	if err != nil {
		return failure(err)
	}

	var storageRef string
	if len(res.Archive) > 0 && p.blobs != nil {
		storageRef, err = p.blobs.Upload(ctx, job.UserID, job.ContentID+".pdf", res.Archive)
		if err != nil {
			return failure(fmt.Errorf("archive: %w", err))
		}
	}
	fail := func(err error) outcome {
		out := failure(err)
		out.storageRef = storageRef
		return out
	}

	summary, err := p.summarizer.Summarize(ai.WithUser(ctx, job.UserID), res.ViewText, job.UserID)
	if err != nil {
		return fail(err)
	}

	// A redelivered job may find chunks from an earlier attempt.
	if err := p.index.RemoveDocument(ctx, job.ContentID); err != nil {
		return fail(fmt.Errorf("clear stale chunks: %w", err))
	}
	chunks, err := p.index.InsertDocument(ctx, res.ViewText, domain.ChunkMetadata{
		SourceID:   job.ContentID,
		SourceType: job.SourceType,
		UserID:     job.UserID,
	})
	if err != nil {
		return fail(err)
	}

	patch := domain.ContentPatch{
		Title:            optional(res.Title),
		Summary:          domain.Ptr(summary),
		RawText:          domain.Ptr(res.RawText),
		ViewText:         domain.Ptr(res.ViewText),
		StorageRef:       optional(storageRef),
		Image:            optional(res.Image),
		Source:           optional(res.Source),
		ProcessingStatus: domain.Ptr(domain.StatusProcessed),
	}
	return outcome{patch: patch, chunks: chunks, storageRef: storageRef}
}

// finalize performs the single terminal write for a job. The write only
// applies while the record is still processing. When a successful outcome
// cannot be recorded, its chunks and archive are removed again.
func (p *Pipeline) finalize(ctx context.Context, job queue.Job, out outcome) error {
	log := util.LoggerFromContext(ctx)
	if out.err != nil {
		p.discardArchive(ctx, out.storageRef)
		ok, err := p.store.UpdateContent(job.ContentID, failedPatch(p.now()))
		if err != nil {
			return fmt.Errorf("record failure of %s: %w", job.ContentID, err)
		}
		if !ok {
			log.Info("content left processing elsewhere, failure not recorded")
		}
		return nil
	}

	patch := out.patch
	patch.IfStatus = domain.StatusProcessing
	patch.UpdatedAt = p.now()
	ok, err := p.store.UpdateContent(job.ContentID, patch)
	if err == nil && ok {
		return nil
	}

	// The record is not processed, so it must not keep chunks or archives.
	cctx := context.WithoutCancel(ctx)
	if rerr := p.index.RemoveDocument(cctx, job.ContentID); rerr != nil {
		log.Error("remove chunks after failed terminal write", "err", rerr)
	}
	p.discardArchive(cctx, out.storageRef)
	if err == nil {
		log.Info("content left processing elsewhere, result discarded")
		return nil
	}
	if _, ferr := p.store.UpdateContent(job.ContentID, failedPatch(p.now())); ferr != nil {
		return fmt.Errorf("record result of %s: %w", job.ContentID, errors.Join(err, ferr))
	}
	log.Warn("terminal write failed, content marked failed", "err", err)
	return nil
}

func (p *Pipeline) discardArchive(ctx context.Context, ref string) {
	if ref == "" || p.blobs == nil {
		return
	}
	if err := p.blobs.Delete(ctx, ref); err != nil {
		util.LoggerFromContext(ctx).Warn("delete archive", "storage_ref", ref, "err", err)
	}
}

// outcome is the tagged result of processing: a patch on success or the
// reason for failure.
type outcome struct {
	patch      domain.ContentPatch
	err        error
	chunks     int
	storageRef string
}

func failure(err error) outcome {
	return outcome{err: err}
}

func failedPatch(now time.Time) domain.ContentPatch {
	return domain.ContentPatch{
		ProcessingStatus: domain.Ptr(domain.StatusFailed),
		IfStatus:         domain.StatusProcessing,
		UpdatedAt:        now,
	}
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return domain.Ptr(s)
}
