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

const defaultOllamaBaseURL = "http://127.0.0.1:11434"

// OllamaClient calls the embedding and chat endpoints of an Ollama server.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient returns a client for baseURL, or the local default server
// when baseURL is blank.
func NewOllamaClient(baseURL string) *OllamaClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaClient{baseURL: baseURL, httpClient: &http.Client{Timeout: 60 * time.Second}}
}

// EmbedText embeds one input.
func (c *OllamaClient) EmbedText(ctx context.Context, model string, text string, dimensions int) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("embedding text required")
	}
	out, err := c.embed(ctx, model, []string{text}, dimensions)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedTexts embeds the inputs in one request, in order.
func (c *OllamaClient) EmbedTexts(ctx context.Context, model string, texts []string, dimensions int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return c.embed(ctx, model, texts, dimensions)
}

// embed posts inputs to /api/embed. Older servers only know
// /api/embeddings, which takes a single prompt, so they get one call per input.
func (c *OllamaClient) embed(ctx context.Context, model string, inputs []string, dimensions int) ([][]float32, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("ollama embedding model required")
	}
	req := ollamaEmbedRequest{Model: model, Input: inputs, Dimensions: dimensions}
	if len(inputs) == 1 {
		req.Input = inputs[0]
	}
	var resp ollamaEmbedResponse
	err := c.post(ctx, "/api/embed", req, &resp)
	if isMissingEndpoint(err) {
		return c.embedEach(ctx, model, inputs)
	}
	if err != nil {
		return nil, err
	}
	vectors := resp.Embeddings
	if len(vectors) == 0 && len(resp.Embedding) > 0 {
		vectors = [][]float32{resp.Embedding}
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(vectors), len(inputs))
	}
	return vectors, nil
}

func (c *OllamaClient) embedEach(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	out := make([][]float32, 0, len(inputs))
	for i, input := range inputs {
		var resp struct {
			Embedding []float32 `json:"embedding"`
		}
		req := struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}{model, input}
		if err := c.post(ctx, "/api/embeddings", req, &resp); err != nil {
			return nil, err
		}
		if len(resp.Embedding) == 0 {
			return nil, fmt.Errorf("ollama returned no embedding for input %d", i)
		}
		out = append(out, resp.Embedding)
	}
	return out, nil
}

// ollamaAPIError is a non-2xx answer from the server.
type ollamaAPIError struct {
	status  int
	message string
}

func (e *ollamaAPIError) Error() string {
	return fmt.Sprintf("ollama api error (%d): %s", e.status, e.message)
}

func isMissingEndpoint(err error) bool {
	var apiErr *ollamaAPIError
	return errors.As(err, &apiErr) && (apiErr.status == http.StatusNotFound || apiErr.status == http.StatusMethodNotAllowed)
}

// post sends in as JSON to path and decodes the reply into out.
func (c *OllamaClient) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		msg := body.Error
		if msg == "" {
			msg = resp.Status
		}
		return &ollamaAPIError{status: resp.StatusCode, message: msg}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type ollamaEmbedRequest struct {
	Model      string `json:"model"`
	Input      any    `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Embedding  []float32   `json:"embedding"`
}
