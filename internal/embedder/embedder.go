// Package embedder provides the text embedding engine: the engine contract,
// the error-code taxonomy, the in-process inference backends, and the handle
// registry used by the daemon and MCP serving surfaces.
package embedder

import (
	"context"
	"fmt"
)

// Version is the library version reported by the version query.
const Version = "0.4.0"

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts efficiently.
	// The call is all-or-nothing: on error no vectors are returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelVersion returns the model identifier for cache invalidation.
	ModelVersion() string

	// Dimensions returns the embedding vector dimension.
	Dimensions() int

	// Close releases resources held by the embedder.
	Close() error
}

// EmbedInto embeds text and copies the vector into buf, returning the number
// of elements written. If buf cannot hold the model's output dimension the
// call fails with ErrBufferTooSmall and buf is left untouched.
func EmbedInto(ctx context.Context, e Embedder, text string, buf []float32) (int, error) {
	vec, err := e.Embed(ctx, text)
	if err != nil {
		return 0, err
	}
	if len(vec) > len(buf) {
		return 0, &Error{
			Code:    CodeBufferTooSmall,
			Message: fmt.Sprintf("buffer too small: need %d but got %d", len(vec), len(buf)),
		}
	}
	copy(buf, vec)
	return len(vec), nil
}
