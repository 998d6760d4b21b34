package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type fetched struct {
	Body        []byte
	ContentType string
	FinalURL    *url.URL
}

// fetch performs req with exponential retry. Client errors (4xx) are not
// retried.
func (e *Extractor) fetch(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) (fetched, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryInterval
	return backoff.Retry(ctx, func() (fetched, error) {
		req, err := newReq(ctx)
		if err != nil {
			return fetched{}, backoff.Permanent(err)
		}
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", e.cfg.UserAgent)
		}
		resp, err := e.client.Do(req)
		if err != nil {
			return fetched{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			err := fmt.Errorf("fetch %s: %s", req.URL.Redacted(), resp.Status)
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return fetched{}, backoff.Permanent(err)
			}
			return fetched{}, err
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBytes+1))
		if err != nil {
			return fetched{}, err
		}
		if int64(len(body)) > e.cfg.MaxBytes {
			return fetched{}, backoff.Permanent(fmt.Errorf("fetch %s: body exceeds %d bytes", req.URL.Redacted(), e.cfg.MaxBytes))
		}
		return fetched{Body: body, ContentType: resp.Header.Get("Content-Type"), FinalURL: resp.Request.URL}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(e.cfg.FetchAttempts)))
}

func (e *Extractor) get(ctx context.Context, rawURL string) (fetched, error) {
	return e.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	})
}

func (e *Extractor) postForm(ctx context.Context, rawURL string, form url.Values) (fetched, error) {
	return e.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

func isPDF(f fetched) bool {
	if strings.HasPrefix(strings.ToLower(f.ContentType), "application/pdf") {
		return true
	}
	return looksLikePDF(f.Body)
}

func looksLikePDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

const defaultTimeout = 30 * time.Second
