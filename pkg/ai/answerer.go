package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spacey/pkg/domain"
)

const defaultAnswerPrompt = "You answer questions using only the documents provided by the user. " +
	"If the documents do not contain the answer, say so.\n\nQuestion: {question}"

// AnswererConfig tunes the Answerer.
type AnswererConfig struct {
	// SystemPrompt may contain a {question} placeholder.
	SystemPrompt  string
	Attempts      int
	RetryInterval time.Duration
}

// Answerer synthesizes an answer to a question from retrieved documents.
type Answerer struct {
	gen TextGenerator
	cfg AnswererConfig
}

// NewAnswerer wraps a text generator.
func NewAnswerer(gen TextGenerator, cfg AnswererConfig) (*Answerer, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: answer generator required", domain.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = defaultAnswerPrompt
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	return &Answerer{gen: gen, cfg: cfg}, nil
}

// Answer sends the documents, separated by blank lines, together with the
// question.
func (a *Answerer) Answer(ctx context.Context, documents []string, question, userID string) (string, error) {
	ctx = WithUser(ctx, userID)
	system := strings.ReplaceAll(a.cfg.SystemPrompt, "{question}", question)
	out, err := generateWithRetry(ctx, a.gen, a.cfg.Attempts, a.cfg.RetryInterval, system, strings.Join(documents, "\n\n"))
	if err != nil {
		return "", fmt.Errorf("%w: answer: %w", domain.ErrGeneration, err)
	}
	return strings.TrimSpace(out), nil
}
