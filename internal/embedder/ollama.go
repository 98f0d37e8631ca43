package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	// DefaultOllamaModel is the default Ollama embedding model.
	DefaultOllamaModel = "all-minilm"

	// DefaultOllamaURL is the default Ollama API endpoint.
	DefaultOllamaURL = "http://localhost:11434"
)

// OllamaEmbedder implements Embedder against a running Ollama instance.
// It trades in-process inference for a warm external model server.
type OllamaEmbedder struct {
	client     *http.Client
	baseURL    string
	model      string
	dimensions int
	mu         sync.Mutex
}

// ollamaEmbedRequest is the request body for the Ollama embeddings API.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

// ollamaEmbedResponse is the response from the Ollama embeddings API.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an embedder talking to the given Ollama endpoint.
// Empty baseURL or model fall back to the defaults. dimensions is the expected
// output dimension of the chosen model.
func NewOllamaEmbedder(baseURL, model string, dimensions int) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaEmbedder{
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL:    baseURL,
		model:      model,
		dimensions: dimensions,
	}
}

// Embed generates an embedding vector for the given text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !utf8.ValidString(text) {
		return nil, newError(CodeInvalidUTF8, "invalid UTF-8 input")
	}
	embeddings, err := e.doEmbed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, newError(CodeEmbeddingFailed, "no embeddings returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if !utf8.ValidString(text) {
			return nil, newError(CodeInvalidUTF8, "invalid UTF-8 at index %d", i)
		}
	}
	embeddings, err := e.doEmbed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(texts) {
		return nil, newError(CodeEmbeddingFailed, "got %d embeddings for %d texts", len(embeddings), len(texts))
	}
	return embeddings, nil
}

// doEmbed calls the Ollama API with either a single string or slice of strings.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, input any) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	reqBody := ollamaEmbedRequest{
		Model: e.model,
		Input: input,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, wrapError(CodeEmbeddingFailed, err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, wrapError(CodeEmbeddingFailed, err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, wrapError(CodeEmbeddingFailed, err, "ollama request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, newError(CodeEmbeddingFailed, "ollama returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, wrapError(CodeEmbeddingFailed, err, "decode response")
	}

	return result.Embeddings, nil
}

// ModelVersion returns the model identifier for cache invalidation.
func (e *OllamaEmbedder) ModelVersion() string {
	return fmt.Sprintf("ollama/%s", e.model)
}

// Dimensions returns the embedding vector dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// IsAvailable checks if Ollama is running and can serve the model.
func (e *OllamaEmbedder) IsAvailable(ctx context.Context) bool {
	_, err := e.Embed(ctx, "test")
	return err == nil
}

// Close is a no-op for the HTTP-based embedder.
func (e *OllamaEmbedder) Close() error {
	return nil
}
