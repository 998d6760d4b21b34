package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"spacey/pkg/ai"
	"spacey/pkg/domain"
	"spacey/pkg/textsplit"
	"spacey/pkg/vectorindex"
)

type letterEmbedder struct{}

func (letterEmbedder) EmbedText(_ context.Context, text, _ string) ([]float32, error) {
	vec := make([]float32, 27)
	vec[26] = 1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec, nil
}

type recordingAnswerer struct {
	mu       sync.Mutex
	calls    int
	docs     [][]string
	users    []string
	ctxUsers []string
	err      error
}

func (a *recordingAnswerer) Answer(ctx context.Context, documents []string, question, userID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.docs = append(a.docs, append([]string(nil), documents...))
	a.users = append(a.users, userID)
	a.ctxUsers = append(a.ctxUsers, ai.UserFromContext(ctx))
	if a.err != nil {
		return "", a.err
	}
	return "answer to " + question, nil
}

func newTestService(t *testing.T) (*Service, *vectorindex.Index, *recordingAnswerer) {
	t.Helper()
	chunker, err := textsplit.New(200, 20)
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}
	backend, err := vectorindex.OpenChromem("", "chunks")
	if err != nil {
		t.Fatalf("chromem: %v", err)
	}
	idx, err := vectorindex.New(chunker, letterEmbedder{}, backend, vectorindex.Options{})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	answerer := &recordingAnswerer{}
	svc, err := New(Config{Index: idx, Answerer: answerer})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc, idx, answerer
}

func insert(t *testing.T, idx *vectorindex.Index, id, user string, typ domain.SourceType, text string) {
	t.Helper()
	if _, err := idx.InsertDocument(context.Background(), text, domain.ChunkMetadata{SourceID: id, SourceType: typ, UserID: user}); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
}

func TestSearchGroupsHitsBySourceType(t *testing.T) {
	svc, idx, answerer := newTestService(t)
	insert(t, idx, "pdf-1", "u1", domain.SourcePDF, "gopher tunnels run deep")
	insert(t, idx, "url-1", "u1", domain.SourceURL, "gopher tunnel maps online")
	insert(t, idx, "doi-1", "u1", domain.SourceDOI, "gopher tunnels in the literature")

	res, err := svc.Search(context.Background(), "gopher tunnels", "u1", []domain.SourceType{domain.SourcePDF, domain.SourceURL})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Groups) != 2 {
		t.Fatalf("groups = %+v, want pdf and url", res.Groups)
	}
	if res.Groups[0].Type != domain.SourcePDF || len(res.Groups[0].IDs) != 1 || res.Groups[0].IDs[0] != "pdf-1" {
		t.Fatalf("pdf group = %+v", res.Groups[0])
	}
	if res.Groups[1].Type != domain.SourceURL || len(res.Groups[1].IDs) != 1 || res.Groups[1].IDs[0] != "url-1" {
		t.Fatalf("url group = %+v", res.Groups[1])
	}
	if res.Answer != "answer to gopher tunnels" {
		t.Fatalf("answer = %q", res.Answer)
	}
	if answerer.calls != 1 {
		t.Fatalf("answerer calls = %d, want 1", answerer.calls)
	}
	docs := answerer.docs[0]
	if len(docs) != 2 || docs[0] != "gopher tunnels run deep" || docs[1] != "gopher tunnel maps online" {
		t.Fatalf("answer context = %q", docs)
	}
	if answerer.users[0] != "u1" || answerer.ctxUsers[0] != "u1" {
		t.Fatalf("answer attributed to %q/%q", answerer.users[0], answerer.ctxUsers[0])
	}
}

func TestSearchWithoutHitsSkipsAnswerer(t *testing.T) {
	svc, idx, answerer := newTestService(t)

	res, err := svc.Search(context.Background(), "anything", "u1", nil)
	if err != nil {
		t.Fatalf("search empty index: %v", err)
	}
	if len(res.Groups) != 0 || res.Answer != NoResultsAnswer {
		t.Fatalf("result = %+v", res)
	}

	insert(t, idx, "url-2", "u2", domain.SourceURL, "only the other user has content")
	res, err = svc.Search(context.Background(), "content", "u1", []domain.SourceType{domain.SourceURL})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Groups) != 0 || res.Answer != NoResultsAnswer {
		t.Fatalf("result = %+v", res)
	}
	if answerer.calls != 0 {
		t.Fatalf("answerer calls = %d, want 0", answerer.calls)
	}
}

func TestSearchIsolatesUsers(t *testing.T) {
	svc, idx, _ := newTestService(t)
	insert(t, idx, "mine", "u1", domain.SourceURL, "shared words about gophers")
	insert(t, idx, "theirs", "u2", domain.SourceURL, "shared words about gophers")
	insert(t, idx, "theirs-pdf", "u2", domain.SourcePDF, "shared words about gophers")

	res, err := svc.Search(context.Background(), "shared words about gophers", "u1", nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, g := range res.Groups {
		for _, id := range g.IDs {
			if id != "mine" {
				t.Fatalf("u1 saw %s in %s group", id, g.Type)
			}
		}
	}
	if len(res.Groups) != 1 || res.Groups[0].Type != domain.SourceURL {
		t.Fatalf("groups = %+v", res.Groups)
	}
}

func TestSearchDeduplicatesContentIDs(t *testing.T) {
	svc, idx, answerer := newTestService(t)
	long := strings.Repeat("gopher burrow ", 60)
	insert(t, idx, "long-1", "u1", domain.SourcePDF, long)

	res, err := svc.Search(context.Background(), "gopher burrow", "u1", []domain.SourceType{domain.SourcePDF, domain.SourcePDF})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Groups) != 1 || len(res.Groups[0].IDs) != 1 || res.Groups[0].IDs[0] != "long-1" {
		t.Fatalf("groups = %+v", res.Groups)
	}
	if len(answerer.docs[0]) != 1 {
		t.Fatalf("answer context = %d passages, want 1", len(answerer.docs[0]))
	}
}

func TestGetAnswerUsesEveryChunkOfOneContent(t *testing.T) {
	svc, idx, answerer := newTestService(t)
	text := strings.Repeat("alpha beta gamma delta ", 25)
	insert(t, idx, "doc-1", "u1", domain.SourcePDF, text)
	insert(t, idx, "doc-2", "u1", domain.SourcePDF, "unrelated content")
	insert(t, idx, "doc-3", "u2", domain.SourcePDF, text)

	want, err := idx.Query(context.Background(), "x", vectorindex.Filter{SourceID: vectorindex.Eq("doc-1")}, 100)
	if err != nil {
		t.Fatalf("count chunks: %v", err)
	}

	got, err := svc.GetAnswer(context.Background(), "doc-1", "what letters?", "u1")
	if err != nil {
		t.Fatalf("get answer: %v", err)
	}
	if got.Answer != "answer to what letters?" {
		t.Fatalf("answer = %q", got.Answer)
	}
	if len(got.Documents) != len(want) || len(want) < 2 {
		t.Fatalf("documents = %d, chunks = %d", len(got.Documents), len(want))
	}
	for _, doc := range answerer.docs[0] {
		if !strings.Contains(text, doc) {
			t.Fatalf("passage %q is not from doc-1", doc)
		}
	}
}

func TestGetAnswerBoundsPassagesToMostSimilarChunks(t *testing.T) {
	_, idx, _ := newTestService(t)
	answerer := &recordingAnswerer{}
	svc, err := New(Config{Index: idx, Answerer: answerer, MaxDocumentChunks: 2})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	text := strings.Repeat("alpha beta gamma delta ", 10) + strings.Repeat("omega sigma tau ", 20)
	insert(t, idx, "doc-1", "u1", domain.SourcePDF, text)

	all, err := idx.Query(context.Background(), "omega sigma", vectorindex.Filter{SourceID: vectorindex.Eq("doc-1")}, 100)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) <= 2 {
		t.Fatalf("document has %d chunks, need more than 2", len(all))
	}

	got, err := svc.GetAnswer(context.Background(), "doc-1", "omega sigma", "u1")
	if err != nil {
		t.Fatalf("get answer: %v", err)
	}
	if len(got.Documents) != 2 {
		t.Fatalf("documents = %d, want 2", len(got.Documents))
	}
	for _, doc := range got.Documents {
		if !strings.Contains(doc, "omega") {
			t.Fatalf("passage %q is not among the closest chunks", doc)
		}
	}
}

func TestGetAnswerForeignOrMissingContent(t *testing.T) {
	svc, idx, answerer := newTestService(t)
	insert(t, idx, "doc-1", "u2", domain.SourceURL, "private notes")

	for _, id := range []string{"doc-1", "missing"} {
		got, err := svc.GetAnswer(context.Background(), id, "what?", "u1")
		if err != nil {
			t.Fatalf("get answer %s: %v", id, err)
		}
		if got.Answer != NoDocumentAnswer || len(got.Documents) != 0 {
			t.Fatalf("answer %s = %+v", id, got)
		}
	}
	if answerer.calls != 0 {
		t.Fatalf("answerer calls = %d, want 0", answerer.calls)
	}
}

func TestAnswererFailurePropagates(t *testing.T) {
	svc, idx, answerer := newTestService(t)
	answerer.err = errors.New("model down")
	insert(t, idx, "doc-1", "u1", domain.SourceURL, "some words")
	if _, err := svc.Search(context.Background(), "words", "u1", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSearchValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Search(context.Background(), " ", "u1", nil); err == nil {
		t.Fatalf("expected error for empty query")
	}
	if _, err := svc.Search(context.Background(), "q", "", nil); err == nil {
		t.Fatalf("expected error for missing user")
	}
	if _, err := New(Config{}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}
