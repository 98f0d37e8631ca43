// Package cache provides SQLite-backed caching of computed embeddings.
// The cache is stored in .emb/cache.db and keyed by content hash and
// model version, so a text is only ever embedded once per model.
package cache

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Cache manages the .emb/cache.db SQLite database for storing embeddings.
type Cache struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the cache database at the specified .emb directory.
// It initializes the schema if the database is new.
func Open(embDir string) (*Cache, error) {
	dbPath := filepath.Join(embDir, "cache.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	cache := &Cache{db: db, dbPath: dbPath}

	if err := cache.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return cache, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Clear removes all cached embeddings.
func (c *Cache) Clear() error {
	_, err := c.db.Exec("DELETE FROM embeddings")
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// ClearModel removes all cached embeddings produced by a single model version.
func (c *Cache) ClearModel(modelVersion string) error {
	_, err := c.db.Exec("DELETE FROM embeddings WHERE model_version = ?", modelVersion)
	if err != nil {
		return fmt.Errorf("clear model embeddings: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.dbPath
}

// DB returns the underlying database connection for advanced operations.
func (c *Cache) DB() *sql.DB {
	return c.db
}

// Stats describes the cache contents.
type Stats struct {
	EmbeddingCount int64
	ModelVersions  []string
	SizeBytes      int64
}

// GetStats returns statistics about the cache contents.
func (c *Cache) GetStats() (*Stats, error) {
	var stats Stats

	err := c.db.QueryRow("SELECT COUNT(*) FROM embeddings").Scan(&stats.EmbeddingCount)
	if err != nil {
		return nil, fmt.Errorf("count embeddings: %w", err)
	}

	rows, err := c.db.Query("SELECT DISTINCT model_version FROM embeddings ORDER BY model_version")
	if err != nil {
		return nil, fmt.Errorf("list model versions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mv string
		if err := rows.Scan(&mv); err != nil {
			return nil, fmt.Errorf("scan model version: %w", err)
		}
		stats.ModelVersions = append(stats.ModelVersions, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list model versions: %w", err)
	}

	err = c.db.QueryRow("SELECT COALESCE(SUM(LENGTH(vector)), 0) FROM embeddings").Scan(&stats.SizeBytes)
	if err != nil {
		return nil, fmt.Errorf("sum vector bytes: %w", err)
	}

	return &stats, nil
}
