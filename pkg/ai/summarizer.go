package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"spacey/pkg/domain"
)

const (
	defaultSummaryWindow = 12000
	defaultSummaryPrompt = "Summarize the following text in a few sentences. " +
		"If the text has no meaningful content, answer with the single word none."
)

var (
	noneMarker       = regexp.MustCompile(`(?i)\bnone\b`)
	sentenceBoundary = regexp.MustCompile(`[.!?]+\s+`)
)

// SummarizerConfig tunes the Summarizer.
type SummarizerConfig struct {
	SystemPrompt string
	// WindowChars is the maximum number of characters sent per call.
	WindowChars   int
	Attempts      int
	RetryInterval time.Duration
}

// Summarizer produces a summary of arbitrarily long text by summarizing
// sentence-aligned windows independently and joining the useful results.
type Summarizer struct {
	gen TextGenerator
	cfg SummarizerConfig
}

// NewSummarizer wraps a text generator.
func NewSummarizer(gen TextGenerator, cfg SummarizerConfig) (*Summarizer, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: summarizer generator required", domain.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = defaultSummaryPrompt
	}
	if cfg.WindowChars <= 0 {
		cfg.WindowChars = defaultSummaryWindow
	}
	if cfg.WindowChars < 100 {
		return nil, fmt.Errorf("%w: summary window must be at least 100 characters", domain.ErrConfiguration)
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	return &Summarizer{gen: gen, cfg: cfg}, nil
}

// Summarize returns the joined window summaries. Windows whose summary
// contains the word "none" are dropped.
func (s *Summarizer) Summarize(ctx context.Context, text, userID string) (string, error) {
	ctx = WithUser(ctx, userID)
	windows := s.windows(text)
	summaries := make([]string, 0, len(windows))
	for i, window := range windows {
		out, err := generateWithRetry(ctx, s.gen, s.cfg.Attempts, s.cfg.RetryInterval, s.cfg.SystemPrompt, window)
		if err != nil {
			return "", fmt.Errorf("%w: summarize window %d: %w", domain.ErrGeneration, i, err)
		}
		out = strings.TrimSpace(out)
		if noneMarker.MatchString(out) {
			continue
		}
		summaries = append(summaries, out)
	}
	return strings.Join(summaries, "\n"), nil
}

// windows packs whole sentences into windows of at most WindowChars runes.
// Sentences longer than a window are cut.
func (s *Summarizer) windows(text string) []string {
	limit := s.cfg.WindowChars
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, sentence := range splitSentences(text) {
		runes := []rune(sentence)
		for len(runes) > limit {
			flush()
			out = append(out, string(runes[:limit]))
			runes = runes[limit:]
		}
		n := len(runes)
		if n == 0 {
			continue
		}
		sep := 0
		if curLen > 0 {
			sep = 1
		}
		if curLen+sep+n > limit {
			flush()
			sep = 0
		}
		if sep == 1 {
			cur.WriteByte(' ')
		}
		cur.WriteString(string(runes))
		curLen += sep + n
	}
	flush()
	return out
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}
