package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spacey/pkg/domain"
	"spacey/pkg/store"
)

// ReindexReport counts the work done by Reindex.
type ReindexReport struct {
	Records int `json:"records"`
	Chunks  int `json:"chunks"`
	Failed  int `json:"failed"`
}

// Reindex rebuilds the chunks of every processed record, optionally limited
// to one user. Records are handled one at a time; a failing record is
// counted and reported without stopping the run.
func (p *Pipeline) Reindex(ctx context.Context, userID string) (ReindexReport, error) {
	records, err := p.store.ListContent(store.ContentQuery{
		UserID: strings.TrimSpace(userID),
		Status: domain.StatusProcessed,
	})
	if err != nil {
		return ReindexReport{}, fmt.Errorf("list processed content: %w", err)
	}

	var (
		report ReindexReport
		errs   []error
	)
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if record.ViewText == nil || strings.TrimSpace(*record.ViewText) == "" {
			continue
		}
		n, err := p.reindexRecord(ctx, record)
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", record.ID, err))
			p.logger.Warn("reindex failed", "content_id", record.ID, "err", err)
			continue
		}
		report.Records++
		report.Chunks += n
	}
	p.logger.Info("reindex finished", "user_id", userID, "records", report.Records, "chunks", report.Chunks, "failed", report.Failed)
	return report, errors.Join(errs...)
}

func (p *Pipeline) reindexRecord(ctx context.Context, record domain.Content) (int, error) {
	if err := p.index.RemoveDocument(ctx, record.ID); err != nil {
		return 0, err
	}
	return p.index.InsertDocument(ctx, *record.ViewText, domain.ChunkMetadata{
		SourceID:   record.ID,
		SourceType: record.SourceType,
		UserID:     record.UserID,
	})
}
