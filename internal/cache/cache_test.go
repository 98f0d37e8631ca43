package cache

import (
	"testing"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGet(t *testing.T) {
	c := openTestCache(t)

	vec := []float32{0.1, -0.2, 0.3, 0.4}
	if err := c.Put("abc123", "mini_lm_v2", "hello world", vec); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	entry, err := c.Get("abc123", "mini_lm_v2")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if entry == nil {
		t.Fatal("Get() returned nil for stored embedding")
	}
	if entry.Text != "hello world" {
		t.Errorf("Text = %q, want %q", entry.Text, "hello world")
	}
	if len(entry.Vector) != len(vec) {
		t.Fatalf("Vector length = %d, want %d", len(entry.Vector), len(vec))
	}
	for i := range vec {
		if entry.Vector[i] != vec[i] {
			t.Errorf("Vector[%d] = %f, want %f", i, entry.Vector[i], vec[i])
		}
	}
	if entry.CreatedAt == "" {
		t.Error("CreatedAt is empty")
	}
}

func TestGetMiss(t *testing.T) {
	c := openTestCache(t)

	entry, err := c.Get("nothere", "mini_lm_v2")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if entry != nil {
		t.Errorf("Get() on miss = %+v, want nil", entry)
	}
}

func TestPutReplaces(t *testing.T) {
	c := openTestCache(t)

	if err := c.Put("h1", "m1", "text", []float32{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("h1", "m1", "text", []float32{3, 4}); err != nil {
		t.Fatal(err)
	}

	n, err := c.Count("m1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1 after replace", n)
	}

	entry, err := c.Get("h1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Vector[0] != 3 {
		t.Errorf("Vector[0] = %f, want replaced value 3", entry.Vector[0])
	}
}

func TestModelVersionsIndependent(t *testing.T) {
	c := openTestCache(t)

	if err := c.Put("h1", "m1", "text", []float32{1}); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("h1", "m2", "text", []float32{2}); err != nil {
		t.Fatal(err)
	}

	e1, err := c.Get("h1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	e2, err := c.Get("h1", "m2")
	if err != nil {
		t.Fatal(err)
	}
	if e1.Vector[0] == e2.Vector[0] {
		t.Error("same hash under different models should be independent rows")
	}
}

func TestDelete(t *testing.T) {
	c := openTestCache(t)

	if err := c.Put("h1", "m1", "text", []float32{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete("h1", "m1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	entry, err := c.Get("h1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Error("Get() after Delete should miss")
	}

	// Deleting again is not an error.
	if err := c.Delete("h1", "m1"); err != nil {
		t.Errorf("Delete() of missing row error: %v", err)
	}
}

func TestClear(t *testing.T) {
	c := openTestCache(t)

	for _, h := range []string{"a", "b", "c"} {
		if err := c.Put(h, "m1", "text "+h, []float32{1}); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	n, err := c.Count("m1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Count() after Clear = %d, want 0", n)
	}
}

func TestClearModel(t *testing.T) {
	c := openTestCache(t)

	if err := c.Put("a", "m1", "one", []float32{1}); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("b", "m2", "two", []float32{2}); err != nil {
		t.Fatal(err)
	}

	if err := c.ClearModel("m1"); err != nil {
		t.Fatalf("ClearModel() error: %v", err)
	}

	n1, _ := c.Count("m1")
	n2, _ := c.Count("m2")
	if n1 != 0 || n2 != 1 {
		t.Errorf("Count(m1)=%d Count(m2)=%d, want 0 and 1", n1, n2)
	}
}

func TestGetStats(t *testing.T) {
	c := openTestCache(t)

	if err := c.Put("a", "m1", "one", []float32{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("b", "m2", "two", []float32{4, 5, 6}); err != nil {
		t.Fatal(err)
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if stats.EmbeddingCount != 2 {
		t.Errorf("EmbeddingCount = %d, want 2", stats.EmbeddingCount)
	}
	if len(stats.ModelVersions) != 2 {
		t.Errorf("ModelVersions = %v, want 2 entries", stats.ModelVersions)
	}
	if stats.SizeBytes != 24 {
		t.Errorf("SizeBytes = %d, want 24", stats.SizeBytes)
	}
}

func TestFindSimilar(t *testing.T) {
	c := openTestCache(t)

	entries := map[string][]float32{
		"exact":      {1, 0, 0},
		"close":      {0.9, 0.1, 0},
		"orthogonal": {0, 1, 0},
		"opposite":   {-1, 0, 0},
	}
	for text, vec := range entries {
		if err := c.Put(text+"-hash", "m1", text, vec); err != nil {
			t.Fatal(err)
		}
	}
	// Wrong model version must not appear in results.
	if err := c.Put("other-hash", "m2", "other", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}

	results, err := c.FindSimilar([]float32{1, 0, 0}, "m1", 3)
	if err != nil {
		t.Fatalf("FindSimilar() error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("FindSimilar() returned %d results, want 3", len(results))
	}
	if results[0].Text != "exact" {
		t.Errorf("top result = %q, want %q", results[0].Text, "exact")
	}
	if results[1].Text != "close" {
		t.Errorf("second result = %q, want %q", results[1].Text, "close")
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("results not sorted: [%d]=%f > [%d]=%f",
				i, results[i].Similarity, i-1, results[i-1].Similarity)
		}
	}
	for _, r := range results {
		if r.Text == "other" {
			t.Error("FindSimilar() leaked a different model version")
		}
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0, 1, -1, 3.14159, -2.71828}
	got, err := decodeVector(encodeVector(vec), len(vec))
	if err != nil {
		t.Fatalf("decodeVector() error: %v", err)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("round trip [%d] = %f, want %f", i, got[i], vec[i])
		}
	}

	if _, err := decodeVector([]byte{1, 2, 3}, 5); err == nil {
		t.Error("decodeVector() with short blob should fail")
	}
}
