package cache

// schemaSQL defines the SQLite schema for the cache database.
// A row is keyed by (content_hash, model_version): the same text embedded
// under two models yields two independent rows.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS embeddings (
    content_hash TEXT NOT NULL,
    model_version TEXT NOT NULL,
    dims INTEGER NOT NULL,
    text TEXT NOT NULL,
    vector BLOB NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (content_hash, model_version)
);

CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model_version);
`

// initSchema creates the database tables and indexes if they don't exist.
func (c *Cache) initSchema() error {
	_, err := c.db.Exec(schemaSQL)
	return err
}
