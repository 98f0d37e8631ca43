package cache

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hargabyte/emb/internal/vectors"
)

// Entry is a cached embedding row.
type Entry struct {
	ContentHash  string
	ModelVersion string
	Text         string
	Vector       []float32
	CreatedAt    string
}

// SimilarityResult is a nearest-neighbor search hit.
type SimilarityResult struct {
	ContentHash string  `json:"content_hash"`
	Text        string  `json:"text"`
	Similarity  float64 `json:"similarity"`
}

// Put stores an embedding, replacing any previous row for the same
// (contentHash, modelVersion) pair.
func (c *Cache) Put(contentHash, modelVersion, text string, vector []float32) error {
	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO embeddings (content_hash, model_version, dims, text, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		contentHash, modelVersion, len(vector), text, encodeVector(vector),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("put embedding: %w", err)
	}
	return nil
}

// Get retrieves a cached embedding. Returns (nil, nil) on a cache miss.
func (c *Cache) Get(contentHash, modelVersion string) (*Entry, error) {
	var (
		entry Entry
		dims  int
		blob  []byte
	)
	err := c.db.QueryRow(`
		SELECT content_hash, model_version, dims, text, vector, created_at
		FROM embeddings WHERE content_hash = ? AND model_version = ?`,
		contentHash, modelVersion,
	).Scan(&entry.ContentHash, &entry.ModelVersion, &dims, &entry.Text, &blob, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}

	entry.Vector, err = decodeVector(blob, dims)
	if err != nil {
		return nil, fmt.Errorf("get embedding %s: %w", contentHash, err)
	}
	return &entry, nil
}

// Delete removes a cached embedding. Deleting a missing row is not an error.
func (c *Cache) Delete(contentHash, modelVersion string) error {
	_, err := c.db.Exec(
		"DELETE FROM embeddings WHERE content_hash = ? AND model_version = ?",
		contentHash, modelVersion,
	)
	if err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}
	return nil
}

// Count returns the number of cached embeddings for a model version.
func (c *Cache) Count(modelVersion string) (int64, error) {
	var n int64
	err := c.db.QueryRow(
		"SELECT COUNT(*) FROM embeddings WHERE model_version = ?", modelVersion,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

// FindSimilar scans the embeddings for a model version and returns the top
// limit entries by cosine similarity to the query vector. The scan is linear;
// the cache is not an index.
func (c *Cache) FindSimilar(queryVec []float32, modelVersion string, limit int) ([]SimilarityResult, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := c.db.Query(`
		SELECT content_hash, dims, text, vector
		FROM embeddings WHERE model_version = ?`, modelVersion)
	if err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}
	defer rows.Close()

	var results []SimilarityResult
	for rows.Next() {
		var (
			hash string
			dims int
			text string
			blob []byte
		)
		if err := rows.Scan(&hash, &dims, &text, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		vec, err := decodeVector(blob, dims)
		if err != nil {
			return nil, fmt.Errorf("decode embedding %s: %w", hash, err)
		}
		sim := vectors.Cosine(queryVec, vec)
		if math.IsNaN(sim) {
			continue
		}
		results = append(results, SimilarityResult{
			ContentHash: hash,
			Text:        text,
			Similarity:  sim,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// encodeVector serializes a float32 vector to little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector deserializes a little-endian float32 vector of dims values.
func decodeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob) != 4*dims {
		return nil, fmt.Errorf("vector blob is %d bytes, want %d for %d dims", len(blob), 4*dims, dims)
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
