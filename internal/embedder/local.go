package embedder

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/hargabyte/emb/internal/models"
	"github.com/hargabyte/emb/internal/vectors"
)

// DefaultBatchSize is the number of texts sent through the pipeline per run.
const DefaultBatchSize = 32

// LocalOptions configures a LocalEmbedder.
type LocalOptions struct {
	// BatchSize caps the number of texts per pipeline run (0 = default).
	BatchSize int

	// Normalize applies L2 normalization to output vectors.
	Normalize bool

	// OnnxFilename selects a specific ONNX file when the model folder
	// contains more than one (empty = pipeline default).
	OnnxFilename string
}

// LocalEmbedder runs transformer inference in-process through a hugot
// feature-extraction pipeline over ONNX weights. The pipeline applies mean
// pooling; L2 normalization is applied here when enabled.
type LocalEmbedder struct {
	session   *hugot.Session
	pipeline  *pipelines.FeatureExtractionPipeline
	model     models.Model
	batchSize int
	normalize bool

	mu     sync.Mutex
	closed bool
}

// NewLocalEmbedder loads the model from weightsDir and prepares it for
// inference. Loading the tokenizer and weights is the slow path; keep the
// embedder alive across calls.
func NewLocalEmbedder(m models.Model, weightsDir string, opts LocalOptions) (*LocalEmbedder, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, wrapError(CodeInitializationFailed, err, "create inference session")
	}

	cfg := hugot.FeatureExtractionConfig{
		ModelPath:    weightsDir,
		Name:         "emb-" + m.Name,
		OnnxFilename: opts.OnnxFilename,
	}

	pipeline, err := hugot.NewPipeline(session, cfg)
	if err != nil {
		session.Destroy()
		return nil, wrapError(CodeInitializationFailed, err, "load model %s from %s", m.Name, weightsDir)
	}

	return &LocalEmbedder{
		session:   session,
		pipeline:  pipeline,
		model:     m,
		batchSize: batchSize,
		normalize: opts.Normalize,
	}, nil
}

// Embed generates an embedding vector for the given text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, newError(CodeEmbeddingFailed, "pipeline returned no vectors")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts. Texts are run through
// the pipeline in chunks of the configured batch size. The call is
// all-or-nothing: any failure returns no vectors.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if !utf8.ValidString(text) {
			return nil, newError(CodeInvalidUTF8, "invalid UTF-8 at index %d", i)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, newError(CodeInvalidHandle, "embedder is closed")
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, wrapError(CodeEmbeddingFailed, err, "embedding canceled")
		}

		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		result, err := e.pipeline.RunPipeline(texts[start:end])
		if err != nil {
			return nil, wrapError(CodeEmbeddingFailed, err, "run pipeline")
		}

		for _, emb := range result.Embeddings {
			vec := make([]float32, len(emb))
			copy(vec, emb)
			if e.normalize {
				vectors.NormalizeL2(vec)
			}
			out = append(out, vec)
		}
	}

	if len(out) != len(texts) {
		return nil, newError(CodeEmbeddingFailed, "pipeline returned %d vectors for %d texts", len(out), len(texts))
	}
	return out, nil
}

// ModelVersion returns the model's hub identifier for cache invalidation.
func (e *LocalEmbedder) ModelVersion() string {
	return e.model.HubID
}

// Dimensions returns the embedding vector dimension.
func (e *LocalEmbedder) Dimensions() int {
	return e.model.Dimensions
}

// Close releases the inference session. The embedder is unusable afterwards;
// further calls fail with InvalidHandle.
func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.session.Destroy()
}
