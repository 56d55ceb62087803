package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit wins over key", Config{Provider: "ollama", APIKey: "sk-x"}, ProviderOllama},
		{"explicit is case-insensitive", Config{Provider: "OpenAI"}, ProviderOpenAI},
		{"api key selects openai", Config{APIKey: "sk-x"}, ProviderOpenAI},
		{"nothing configured falls back to local", Config{}, ProviderLocal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectProvider(tt.cfg))
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		emb, err := New(Config{Dimension: 64})
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, emb.Provider())
		assert.Equal(t, 64, emb.Dimension())
		assert.Equal(t, "local-hash-64", emb.Model())
	})

	t.Run("openai with custom model", func(t *testing.T) {
		emb, err := New(Config{APIKey: "sk-x", Model: "text-embedding-3-large"})
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, emb.Provider())
		assert.Equal(t, "text-embedding-3-large", emb.Model())
		assert.Equal(t, 3072, emb.Dimension())
	})

	t.Run("openai without key", func(t *testing.T) {
		_, err := New(Config{Provider: ProviderOpenAI})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("ollama defaults", func(t *testing.T) {
		emb, err := New(Config{Provider: ProviderOllama})
		require.NoError(t, err)
		defer emb.Close()
		assert.Equal(t, DefaultOllamaModel, emb.Model())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(Config{Provider: "jina"})
		assert.ErrorIs(t, err, ErrUnsupportedProvider)
	})
}
