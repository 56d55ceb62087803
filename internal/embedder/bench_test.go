package embedder

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkComputeHash(b *testing.B) {
	texts := []string{
		"short",
		"medium length text for hashing",
		"this is a longer text that represents a typical code chunk that might be embedded for semantic search in a codebase",
	}

	for _, text := range texts {
		b.Run(fmt.Sprintf("len=%d", len(text)), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = ComputeHash(text)
			}
		})
	}
}

func BenchmarkCache(b *testing.B) {
	cache := NewCache(10000)
	vec := make([]float32, 1024)

	b.Run("set", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			cache.Set(fmt.Sprintf("hash-%d", i%1000), vec)
		}
	})

	b.Run("get", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = cache.Get(fmt.Sprintf("hash-%d", i%1000))
		}
	})
}

func BenchmarkLocalProvider(b *testing.B) {
	p := NewLocalProvider(0)
	text := "func (s *SQLiteStorage) UpsertFileChunks(ctx context.Context, collection string, fp *FileFingerprint, chunks []*Chunk) error"
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.Embed(ctx, []string{text})
	}
}

func BenchmarkAdapterCachedBatch(b *testing.B) {
	a := NewAdapter(NewLocalProvider(0), DefaultAdapterConfig())
	ctx := context.Background()
	texts := make([]string, 32)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk body %d", i)
	}
	_, _ = a.EmbedBatch(ctx, texts)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = a.EmbedBatch(ctx, texts)
	}
}
