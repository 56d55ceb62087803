package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	// ErrTransient marks provider errors worth retrying: timeouts, rate limits, 5xx
	ErrTransient           = errors.New("transient provider error")
	ErrNoProviderEnabled   = errors.New("no embedding provider configured")
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
)

// Embedder is an embedding provider: it maps a batch of texts to a batch of
// vectors, positionally aligned with the input.
type Embedder interface {
	// Embed returns one vector per text, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Verify checks that the provider is reachable and the model usable
	Verify(ctx context.Context) error

	// Dimension returns the vector length, or 0 if only known after a call
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// Cache provides in-memory LRU caching of vectors keyed by model and content hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached vector so callers cannot mutate the cache
func (c *Cache) Get(key string) ([]float32, bool) {
	vec, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Set stores a copy of vec
func (c *Cache) Set(key string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.cache.Add(key, stored)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// CacheKey scopes a content hash to a model
func CacheKey(model, text string) string {
	return model + ":" + ComputeHash(text)
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = float32(float64(val) / norm)
	}

	return result
}
