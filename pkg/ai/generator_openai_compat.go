package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatGenerator calls any OpenAI-compatible /v1/chat/completions endpoint.
// Works with vLLM, LiteLLM, LocalAI, Deepseek, OpenRouter, self-hosted models, etc.
type OpenAICompatGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatGenerator builds an OpenAI-compatible TextGenerator.
// baseURL should include the /v1 prefix, e.g. "http://localhost:8000/v1".
// apiKey can be empty for local models that do not require authentication.
func NewOpenAICompatGenerator(baseURL, apiKey, model string) *OpenAICompatGenerator {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &OpenAICompatGenerator{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// GenerateText implements TextGenerator using the OpenAI chat completions API.
func (g *OpenAICompatGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.model == "" {
		return "", fmt.Errorf("openai-compat generation model required")
	}
	reqBody := oaiChatRequest{
		Model:    g.model,
		Messages: promptMessages(systemPrompt, userPrompt),
		User:     UserFromContext(ctx),
	}

	var chatResp oaiChatResponse
	if err := doOpenAICompat(ctx, g.httpClient, g.baseURL+"/chat/completions", g.apiKey, reqBody, &chatResp); err != nil {
		return "", err
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from openai-compat api")
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from openai-compat api")
	}
	return text, nil
}

// OpenAICompatEmbedder calls an OpenAI-compatible /v1/embeddings endpoint.
type OpenAICompatEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewOpenAICompatEmbedder builds an embedder for OpenAI-compatible servers.
// dimensions is forwarded when > 0 for models that support shortening.
func NewOpenAICompatEmbedder(baseURL, apiKey, model string, dimensions int) *OpenAICompatEmbedder {
	return &OpenAICompatEmbedder{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// EmbedText implements Embedder.
func (e *OpenAICompatEmbedder) EmbedText(ctx context.Context, text, taskType string) ([]float32, error) {
	out, err := e.EmbedTexts(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedTexts implements BatchEmbedder. taskType has no OpenAI equivalent.
func (e *OpenAICompatEmbedder) EmbedTexts(ctx context.Context, texts []string, _ string) ([][]float32, error) {
	if e.model == "" {
		return nil, fmt.Errorf("openai-compat embedding model required")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	reqBody := oaiEmbedRequest{Model: e.model, Input: texts, Dimensions: e.dimensions, User: UserFromContext(ctx)}
	var resp oaiEmbedResponse
	if err := doOpenAICompat(ctx, e.httpClient, e.baseURL+"/embeddings", e.apiKey, reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai-compat embeddings returned %d vectors, want %d", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai-compat embeddings index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func doOpenAICompat(ctx context.Context, client *http.Client, url, apiKey string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("openai-compat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return fmt.Errorf("openai-compat api error: %s", errResp.Error.Message)
		}
		return fmt.Errorf("openai-compat api error: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("openai-compat decode: %w", err)
	}
	return nil
}

// OpenAI-compatible request/response types.

type oaiChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	User     string        `json:"user,omitempty"`
}

type oaiEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
	User       string   `json:"user,omitempty"`
}

type oaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
