package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spacey/pkg/domain"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; spacey-ingest/1.0)"
	defaultMaxBytes  = 64 << 20
)

// Result is the normalized output of one extraction.
type Result struct {
	Title    string
	RawText  string
	ViewText string
	// Image is the lead image URL of a web page.
	Image string
	// Source is the canonical locator to store with the record, if any.
	Source string
	// Archive holds document bytes worth keeping in blob storage.
	Archive []byte
}

// Config tunes an Extractor.
type Config struct {
	HTTPClient     *http.Client
	UserAgent      string
	DOIResolverURL string
	FetchAttempts  int
	RetryInterval  time.Duration
	MaxBytes       int64
	// Pdftotext prefers the poppler pdftotext binary when it is installed.
	Pdftotext bool
}

// Extractor turns raw sources into title, raw text and readable text.
type Extractor struct {
	cfg    Config
	client *http.Client
}

// New builds an Extractor with defaults for unset fields.
func New(cfg Config) *Extractor {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	return &Extractor{cfg: cfg, client: cfg.HTTPClient}
}

// Extract dispatches on the source type. Every failure wraps
// domain.ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, typ domain.SourceType, src domain.Source) (Result, error) {
	var (
		res Result
		err error
	)
	switch typ {
	case domain.SourcePDF:
		if !src.IsBytes() {
			return Result{}, fmt.Errorf("%w: pdf source requires uploaded bytes", domain.ErrExtraction)
		}
		res, err = e.extractPDF(ctx, src.Data)
	case domain.SourceURL:
		res, err = e.extractURL(ctx, src.Text)
	case domain.SourceDOI:
		res, err = e.extractDOI(ctx, src.Text)
	default:
		return Result{}, fmt.Errorf("%w: unsupported source type %q", domain.ErrExtraction, typ)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrExtraction, err)
	}
	if strings.TrimSpace(res.ViewText) == "" {
		return Result{}, fmt.Errorf("%w: no readable text", domain.ErrExtraction)
	}
	return res, nil
}

func (e *Extractor) extractURL(ctx context.Context, raw string) (Result, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Result{}, fmt.Errorf("invalid url %q", raw)
	}
	page, err := e.get(ctx, u.String())
	if err != nil {
		return Result{}, err
	}
	if isPDF(page) {
		res, err := e.extractPDF(ctx, page.Body)
		if err != nil {
			return Result{}, err
		}
		res.Source = u.String()
		return res, nil
	}
	base := page.FinalURL
	if base == nil {
		base = u
	}
	doc, err := parseReadable(page.Body, base)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Title:    doc.Title,
		RawText:  string(page.Body),
		ViewText: doc.Text,
		Image:    doc.Image,
		Source:   u.String(),
	}, nil
}
