package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient talks to the Gemini REST API. The key travels in the
// x-goog-api-key header, never in the URL.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient returns a client for the public endpoint.
func NewGeminiClient(apiKey string) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key required")
	}
	return &GeminiClient{apiKey: apiKey, baseURL: defaultGeminiBaseURL, httpClient: &http.Client{Timeout: 30 * time.Second}}, nil
}

// WithBaseURL points the client at another endpoint, e.g. a proxy.
func (c *GeminiClient) WithBaseURL(baseURL string) *GeminiClient {
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
		c.baseURL = baseURL
	}
	return c
}

// EmbedText embeds one input.
func (c *GeminiClient) EmbedText(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	out, err := c.EmbedTexts(ctx, model, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedTexts embeds the inputs with one batchEmbedContents call, in order.
func (c *GeminiClient) EmbedTexts(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	name := geminiModelName(model)
	var req struct {
		Requests []geminiEmbedItem `json:"requests"`
	}
	for _, text := range texts {
		req.Requests = append(req.Requests, geminiEmbedItem{Model: name, Content: geminiText("", text), TaskType: taskType})
	}
	var resp struct {
		Embeddings []struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	}
	if err := c.call(ctx, name, "batchEmbedContents", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if len(e.Values) == 0 {
			return nil, fmt.Errorf("gemini returned no embedding for input %d", i)
		}
		out[i] = e.Values
	}
	return out, nil
}

// GenerateText runs one generateContent turn and returns the first
// candidate's text.
func (c *GeminiClient) GenerateText(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	req := struct {
		Contents          []geminiContent `json:"contents"`
		SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	}{Contents: []geminiContent{geminiText("user", userPrompt)}}
	if strings.TrimSpace(systemPrompt) != "" {
		sys := geminiText("", systemPrompt)
		req.SystemInstruction = &sys
	}
	var resp struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	if err := c.call(ctx, geminiModelName(model), "generateContent", req, &resp); err != nil {
		return "", err
	}
	for _, cand := range resp.Candidates {
		var buf strings.Builder
		for _, p := range cand.Content.Parts {
			buf.WriteString(p.Text)
		}
		if out := strings.TrimSpace(buf.String()); out != "" {
			return out, nil
		}
	}
	return "", errors.New("gemini returned no text")
}

// call posts in to {baseURL}/{model}:{method}.
func (c *GeminiClient) call(ctx context.Context, model, method string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	endpoint := c.baseURL + "/" + model + ":" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var body struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error.Message != "" {
			return fmt.Errorf("gemini %s (%d): %s", method, resp.StatusCode, body.Error.Message)
		}
		return fmt.Errorf("gemini %s: %s", method, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// geminiModelName accepts "text-embedding-004" or "models/text-embedding-004".
func geminiModelName(model string) string {
	return "models/" + strings.TrimPrefix(strings.TrimSpace(model), "models/")
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func geminiText(role, text string) geminiContent {
	return geminiContent{Role: role, Parts: []geminiPart{{Text: text}}}
}

type geminiEmbedItem struct {
	Model    string        `json:"model"`
	Content  geminiContent `json:"content"`
	TaskType string        `json:"taskType,omitempty"`
}
