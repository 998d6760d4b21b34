package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TextGenerator produces a completion for a system and user prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GeminiGenerator binds a GeminiClient to one model.
type GeminiGenerator struct {
	client *GeminiClient
	model  string
}

func NewGeminiGenerator(client *GeminiClient, model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model}
}

func (g *GeminiGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.client.GenerateText(ctx, g.model, systemPrompt, userPrompt)
}

// OllamaGenerator talks to the /api/chat endpoint of an Ollama server with
// streaming disabled.
type OllamaGenerator struct {
	client *OllamaClient
	model  string
	// Temperature is sent as options.temperature when > 0.
	Temperature float64
}

func NewOllamaGenerator(client *OllamaClient, model string) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: strings.TrimSpace(model)}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

func (g *OllamaGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.model == "" {
		return "", errors.New("ollama generation model required")
	}
	req := ollamaChatRequest{Model: g.model, Messages: promptMessages(systemPrompt, userPrompt)}
	if g.Temperature > 0 {
		req.Options = map[string]any{"temperature": g.Temperature}
	}
	var resp struct {
		Message chatMessage `json:"message"`
	}
	if err := g.client.post(ctx, "/api/chat", req, &resp); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	out := strings.TrimSpace(resp.Message.Content)
	if out == "" {
		return "", errors.New("ollama chat: empty response")
	}
	return out, nil
}

// promptMessages builds the chat transcript shared by chat-style providers.
func promptMessages(systemPrompt, userPrompt string) []chatMessage {
	msgs := make([]chatMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	return append(msgs, chatMessage{Role: "user", Content: userPrompt})
}
