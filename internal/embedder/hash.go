package embedder

import (
	"encoding/hex"
	"hash/fnv"
)

// ContentHash generates a hash of the input text for cache keying.
// Returns a 16-character hex string.
func ContentHash(text string) string {
	h := fnv.New64a()
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
