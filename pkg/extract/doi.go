package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"spacey/pkg/domain"
)

// extractDOI resolves a DOI to its PDF through the configured resolver. The
// resolver answers a form POST of request=<doi> with either the PDF itself
// or an HTML page embedding it in iframe#pdf or embed#pdf.
func (e *Extractor) extractDOI(ctx context.Context, raw string) (Result, error) {
	canonical := domain.CanonicalDOIURL(raw)
	if strings.TrimSpace(e.cfg.DOIResolverURL) == "" {
		return Result{}, fmt.Errorf("doi resolver not configured")
	}
	page, err := e.postForm(ctx, e.cfg.DOIResolverURL, url.Values{"request": {canonical}})
	if err != nil {
		return Result{}, fmt.Errorf("resolve %s: %w", canonical, err)
	}
	pdfBytes := page.Body
	if !isPDF(page) {
		src, err := findPDFFrame(page.Body)
		if err != nil {
			return Result{}, fmt.Errorf("resolve %s: %w", canonical, err)
		}
		pdfURL, err := resolveRef(page.FinalURL, src)
		if err != nil {
			return Result{}, err
		}
		doc, err := e.get(ctx, pdfURL)
		if err != nil {
			return Result{}, fmt.Errorf("download %s: %w", canonical, err)
		}
		pdfBytes = doc.Body
	}
	res, err := e.extractPDF(ctx, pdfBytes)
	if err != nil {
		return Result{}, err
	}
	res.Source = canonical
	return res, nil
}

// resolveRef resolves protocol-relative and relative frame sources against
// the resolver page URL.
func resolveRef(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid pdf url %q: %w", ref, err)
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.String(), nil
}
