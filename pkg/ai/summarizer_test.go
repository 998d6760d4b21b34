package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"spacey/pkg/domain"
)

type recordingGenerator struct {
	mu      sync.Mutex
	systems []string
	users   []string
	ctxUser []string
	reply   func(userPrompt string) (string, error)
}

func (g *recordingGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	g.mu.Lock()
	g.systems = append(g.systems, systemPrompt)
	g.users = append(g.users, userPrompt)
	g.ctxUser = append(g.ctxUser, UserFromContext(ctx))
	g.mu.Unlock()
	if g.reply != nil {
		return g.reply(userPrompt)
	}
	return "summary", nil
}

func TestSummarizeShortTextSingleCall(t *testing.T) {
	gen := &recordingGenerator{}
	s, err := NewSummarizer(gen, SummarizerConfig{})
	if err != nil {
		t.Fatalf("NewSummarizer: %v", err)
	}
	got, err := s.Summarize(context.Background(), "The sky is blue.", "u1")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "summary" {
		t.Fatalf("summary = %q", got)
	}
	if len(gen.users) != 1 || gen.users[0] != "The sky is blue." {
		t.Fatalf("calls = %q", gen.users)
	}
	if gen.ctxUser[0] != "u1" {
		t.Fatalf("user = %q, want u1", gen.ctxUser[0])
	}
}

func TestSummarizeWindowsAndDropsNone(t *testing.T) {
	sentence := strings.Repeat("word ", 15) + "end."
	text := strings.Repeat(sentence+" ", 10)
	gen := &recordingGenerator{}
	calls := 0
	gen.reply = func(string) (string, error) {
		calls++
		if calls == 2 {
			return "None of this matters", nil
		}
		return "part", nil
	}
	s, err := NewSummarizer(gen, SummarizerConfig{WindowChars: 200})
	if err != nil {
		t.Fatalf("NewSummarizer: %v", err)
	}
	got, err := s.Summarize(context.Background(), text, "u1")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(gen.users) < 3 {
		t.Fatalf("expected several windows, got %d", len(gen.users))
	}
	for _, w := range gen.users {
		if utf8.RuneCountInString(w) > 200 {
			t.Fatalf("window of %d chars exceeds limit", utf8.RuneCountInString(w))
		}
		if !strings.HasSuffix(w, "end.") {
			t.Fatalf("window not sentence aligned: %q", w)
		}
	}
	want := strings.TrimSuffix(strings.Repeat("part\n", len(gen.users)-1), "\n")
	if got != want {
		t.Fatalf("summary = %q, want %q", got, want)
	}
}

func TestSummarizeCutsOversizedSentence(t *testing.T) {
	gen := &recordingGenerator{}
	s, _ := NewSummarizer(gen, SummarizerConfig{WindowChars: 100})
	if _, err := s.Summarize(context.Background(), strings.Repeat("x", 250), ""); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(gen.users) != 3 {
		t.Fatalf("windows = %d, want 3", len(gen.users))
	}
}

func TestSummarizeFailureIsGenerationError(t *testing.T) {
	gen := &recordingGenerator{reply: func(string) (string, error) { return "", errors.New("rate limited") }}
	s, _ := NewSummarizer(gen, SummarizerConfig{Attempts: 2, RetryInterval: time.Millisecond})
	_, err := s.Summarize(context.Background(), "text", "u1")
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
	if len(gen.users) != 2 {
		t.Fatalf("attempts = %d, want 2", len(gen.users))
	}
}

func TestAnswerJoinsDocuments(t *testing.T) {
	gen := &recordingGenerator{reply: func(string) (string, error) { return " blue \n", nil }}
	a, err := NewAnswerer(gen, AnswererConfig{SystemPrompt: "Q: {question}"})
	if err != nil {
		t.Fatalf("NewAnswerer: %v", err)
	}
	got, err := a.Answer(context.Background(), []string{"The sky is blue.", "Grass is green."}, "What color is the sky?", "u9")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != "blue" {
		t.Fatalf("answer = %q", got)
	}
	if gen.systems[0] != "Q: What color is the sky?" {
		t.Fatalf("system = %q", gen.systems[0])
	}
	if gen.users[0] != "The sky is blue.\n\nGrass is green." {
		t.Fatalf("user prompt = %q", gen.users[0])
	}
	if gen.ctxUser[0] != "u9" {
		t.Fatalf("user = %q", gen.ctxUser[0])
	}
}

func TestNewSummarizerRejectsTinyWindow(t *testing.T) {
	if _, err := NewSummarizer(&recordingGenerator{}, SummarizerConfig{WindowChars: 10}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}
