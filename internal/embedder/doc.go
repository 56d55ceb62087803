// Package embedder turns chunk text into vectors.
//
// Three providers implement the Embedder interface:
//
//   - openai: the OpenAI embeddings API or any compatible endpoint (go-openai)
//   - ollama: a local Ollama server (ollama/api)
//   - local: offline feature hashing, deterministic, 384 dimensions by default
//
// Providers are thin. The Adapter wraps one and adds what the pipeline needs:
// a per-call timeout, bounded retries for transient failures, an LRU cache
// keyed by model and content hash, and per-item validation of the returned
// vectors.
//
// # Basic Usage
//
//	provider, err := embedder.New(embedder.Config{Provider: "ollama"})
//	if err != nil {
//	    return err
//	}
//	adapter := embedder.NewAdapter(provider, embedder.DefaultAdapterConfig())
//	defer adapter.Close()
//
//	if err := adapter.Verify(ctx); err != nil {
//	    return err // provider down, nothing will be indexed
//	}
//
//	result, err := adapter.EmbedBatch(ctx, texts)
//	if err != nil {
//	    // the whole batch failed
//	}
//	for i, vec := range result.Vectors {
//	    if result.Errors[i] != nil {
//	        continue // this item only
//	    }
//	    _ = vec
//	}
//
// # Provider Selection
//
// DetectProvider picks, in order: the configured provider, openai when an API
// key is present, and local otherwise. Environment variables are resolved by
// the config package, not here.
//
// # Errors
//
// Batch-level failures wrap types.ErrProviderFailure. A vector whose length
// differs from the collection dimension is reported per item as
// types.ErrDimensionMismatch; empty vectors and vectors containing NaN or Inf
// are reported as types.ErrProviderFailure. Context cancellation is returned
// unwrapped.
package embedder
