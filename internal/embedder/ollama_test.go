package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeOllama serves the /api/embed endpoint with deterministic vectors.
func fakeOllama(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}

		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var inputs []string
		switch v := req.Input.(type) {
		case string:
			inputs = []string{v}
		case []interface{}:
			for _, item := range v {
				s, _ := item.(string)
				inputs = append(inputs, s)
			}
		}

		resp := ollamaEmbedResponse{}
		for _, s := range inputs {
			resp.Embeddings = append(resp.Embeddings, hashVector(s, dims))
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestOllamaEmbedder(t *testing.T) {
	srv := fakeOllama(t, 384)
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "all-minilm", 384)

	vec, err := e.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vec) != 384 {
		t.Errorf("Embed() got %d dimensions, want 384", len(vec))
	}
}

func TestOllamaEmbedderBatch(t *testing.T) {
	srv := fakeOllama(t, 384)
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "all-minilm", 384)

	texts := []string{"one", "two", "three"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("EmbedBatch() got %d embeddings, want %d", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) != 384 {
			t.Errorf("EmbedBatch()[%d] got %d dimensions, want 384", i, len(v))
		}
	}
}

func TestOllamaEmbedderEmptyBatch(t *testing.T) {
	e := NewOllamaEmbedder("http://localhost:1", "all-minilm", 384)

	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil) error: %v", err)
	}
	if vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, want nil", vecs)
	}
}

func TestOllamaEmbedderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "all-minilm", 384)

	_, err := e.Embed(context.Background(), "hello")
	if CodeOf(err) != CodeEmbeddingFailed {
		t.Errorf("Embed() against failing server code = %v, want EmbeddingFailed", CodeOf(err))
	}
}

func TestOllamaEmbedderInvalidUTF8(t *testing.T) {
	e := NewOllamaEmbedder("http://localhost:1", "all-minilm", 384)

	_, err := e.Embed(context.Background(), string([]byte{0xff, 0xfe}))
	if CodeOf(err) != CodeInvalidUTF8 {
		t.Errorf("Embed(invalid utf8) code = %v, want InvalidUtf8", CodeOf(err))
	}
}
