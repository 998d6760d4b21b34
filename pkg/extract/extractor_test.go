package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"spacey/pkg/domain"
)

const articlePage = `<!doctype html>
<html><head><title> The Sky </title><script>var x = 1;</script></head>
<body>
<nav>Home | About</nav>
<header>Site banner</header>
<article>
<h1>Why the sky is blue</h1>
<p>The sky is blue.</p>
<p>Grass is   green.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func testExtractor(cfg Config) *Extractor {
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = time.Millisecond
	}
	return New(cfg)
}

func TestExtractURLReadable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	res, err := testExtractor(Config{}).Extract(context.Background(), domain.SourceURL, domain.SourceFromString(srv.URL+"/post"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Title != "The Sky" {
		t.Fatalf("title = %q", res.Title)
	}
	want := "Why the sky is blue\n\nThe sky is blue.\n\nGrass is green."
	if res.ViewText != want {
		t.Fatalf("view text = %q, want %q", res.ViewText, want)
	}
	if res.RawText != articlePage {
		t.Fatalf("raw text should keep the fetched html")
	}
	if res.Archive != nil {
		t.Fatalf("html pages are not archived")
	}
	if res.Source != srv.URL+"/post" {
		t.Fatalf("source = %q", res.Source)
	}
}

func TestExtractURLRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	if _, err := testExtractor(Config{}).Extract(context.Background(), domain.SourceURL, domain.SourceFromString(srv.URL)); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestExtractURLClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testExtractor(Config{}).Extract(context.Background(), domain.SourceURL, domain.SourceFromString(srv.URL))
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestExtractURLRejectsEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><nav>only nav</nav></body></html>"))
	}))
	defer srv.Close()

	_, err := testExtractor(Config{}).Extract(context.Background(), domain.SourceURL, domain.SourceFromString(srv.URL))
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestExtractURLRejectsInvalidURL(t *testing.T) {
	_, err := testExtractor(Config{}).Extract(context.Background(), domain.SourceURL, domain.SourceFromString("ftp://example.com"))
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestExtractDOIThroughResolverFrame(t *testing.T) {
	pdfBytes := minimalPDF("A Paper", "Results are significant")
	var request string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("resolver method = %s", r.Method)
		}
		_ = r.ParseForm()
		request = r.PostForm.Get("request")
		_, _ = w.Write([]byte(`<html><body><iframe id="pdf" src="/files/paper.pdf#view=FitH"></iframe></body></html>`))
	})
	mux.HandleFunc("/files/paper.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdfBytes)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := testExtractor(Config{DOIResolverURL: srv.URL + "/"})
	res, err := e.Extract(context.Background(), domain.SourceDOI, domain.SourceFromString("10.1000/xyz123"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if request != "https://doi.org/10.1000/xyz123" {
		t.Fatalf("resolver request = %q", request)
	}
	if res.Source != "https://doi.org/10.1000/xyz123" {
		t.Fatalf("source = %q", res.Source)
	}
	if res.Title != "A Paper" || !strings.Contains(res.ViewText, "Results are significant") {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Archive) != len(pdfBytes) {
		t.Fatalf("archive = %d bytes, want %d", len(res.Archive), len(pdfBytes))
	}
}

func TestExtractDOIWithoutResolver(t *testing.T) {
	_, err := testExtractor(Config{}).Extract(context.Background(), domain.SourceDOI, domain.SourceFromString("10.1/x"))
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestExtractTitleFallbacks(t *testing.T) {
	doc, err := parseReadable([]byte(`<html><head><meta property="og:title" content="Open Graph"></head><body><h1>Heading</h1><p>x</p></body></html>`), nil)
	if err != nil {
		t.Fatalf("parseReadable: %v", err)
	}
	if doc.Title != "Open Graph" {
		t.Fatalf("title = %q", doc.Title)
	}
	doc, _ = parseReadable([]byte(`<html><body><main><h1>Heading</h1><p>x</p></main></body></html>`), nil)
	if doc.Title != "Heading" {
		t.Fatalf("title = %q", doc.Title)
	}
	if doc.Text != "Heading\n\nx" {
		t.Fatalf("text = %q", doc.Text)
	}
}

func TestExtractURLLeadImage(t *testing.T) {
	const page = `<html><head><title>Otters</title></head><body>
<header><img src="/logo.png"></header>
<article><img src="data:image/png;base64,AAAA"><p>Otters float.</p><img src="img/otter.jpg"></article>
</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	res, err := testExtractor(Config{}).Extract(context.Background(), domain.SourceURL, domain.SourceFromString(srv.URL+"/animals/otters"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if want := srv.URL + "/animals/img/otter.jpg"; res.Image != want {
		t.Fatalf("image = %q, want %q", res.Image, want)
	}
}

func TestLeadImageFallsBackToWholePage(t *testing.T) {
	base, _ := url.Parse("https://example.com/a/b")
	doc, err := parseReadable([]byte(`<html><body><aside><img src="//cdn.example.com/side.png"></aside><article><p>text</p></article></body></html>`), base)
	if err != nil {
		t.Fatalf("parseReadable: %v", err)
	}
	if doc.Image != "https://cdn.example.com/side.png" {
		t.Fatalf("image = %q", doc.Image)
	}

	doc, _ = parseReadable([]byte(`<html><body><article><p>no pictures</p></article></body></html>`), base)
	if doc.Image != "" {
		t.Fatalf("image = %q, want none", doc.Image)
	}
}
