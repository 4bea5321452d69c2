package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Store is the minimal contract shared by the memory, disk, and layered
// caches. Get reports a miss with ok=false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte) error
}

// KeyFrom builds a stable cache key from a namespace and its inputs, e.g.
// KeyFrom("simplify", baseURL, text).
func KeyFrom(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\n\n")))
	return hex.EncodeToString(h[:])
}

// KeyFromBytes is KeyFrom for a binary payload such as an uploaded PDF.
func KeyFromBytes(namespace string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
