package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dshills/kaze/internal/retry"
	"github.com/dshills/kaze/pkg/types"
)

// AdapterConfig tunes how batches are sent to the provider
type AdapterConfig struct {
	Timeout   time.Duration // Per provider call
	Retry     retry.Config  // Applied to timeouts and ErrTransient failures
	CacheSize int           // 0 uses the default; negative disables caching
}

// DefaultAdapterConfig returns a 60s timeout and 3 attempts starting at 500ms
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		Timeout: 60 * time.Second,
		Retry: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
			Multiplier:  2.0,
			Jitter:      true,
		},
		CacheSize: 10000,
	}
}

// BatchResult holds the outcome of one batch, positionally aligned with the
// input texts. Exactly one of Vectors[i] and Errors[i] is set.
type BatchResult struct {
	Vectors [][]float32
	Errors  []error
}

// Failed returns the number of items that could not be embedded
func (r *BatchResult) Failed() int {
	n := 0
	for _, err := range r.Errors {
		if err != nil {
			n++
		}
	}
	return n
}

// Adapter wraps a provider with timeouts, retries, caching and validation.
// It is safe for concurrent use.
type Adapter struct {
	provider  Embedder
	cfg       AdapterConfig
	cache     *Cache
	dimension atomic.Int64
}

// NewAdapter creates an Adapter around provider
func NewAdapter(provider Embedder, cfg AdapterConfig) *Adapter {
	a := &Adapter{provider: provider, cfg: cfg}
	if cfg.CacheSize >= 0 {
		a.cache = NewCache(cfg.CacheSize)
	}
	if dim := provider.Dimension(); dim > 0 {
		a.dimension.Store(int64(dim))
	}
	return a
}

func (a *Adapter) Provider() string { return a.provider.Provider() }
func (a *Adapter) Model() string    { return a.provider.Model() }

// Close closes the underlying provider
func (a *Adapter) Close() error {
	return a.provider.Close()
}

// CacheSize returns the number of cached vectors
func (a *Adapter) CacheSize() int {
	if a.cache == nil {
		return 0
	}
	return a.cache.Size()
}

// EmbedBatch embeds texts. A returned error means the whole batch failed
// (provider failure after retries, or a response of the wrong length);
// otherwise per-item problems are reported in BatchResult.Errors.
func (a *Adapter) EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error) {
	result := &BatchResult{
		Vectors: make([][]float32, len(texts)),
		Errors:  make([]error, len(texts)),
	}

	model := a.provider.Model()
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if a.cache != nil {
			if vec, ok := a.cache.Get(CacheKey(model, text)); ok {
				result.Vectors[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return result, nil
	}

	vectors, err := a.call(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts",
			types.ErrProviderFailure, len(vectors), len(missTexts))
	}

	for j, vec := range vectors {
		i := missIdx[j]
		if err := a.checkVector(vec); err != nil {
			result.Errors[i] = err
			continue
		}
		result.Vectors[i] = vec
		if a.cache != nil {
			a.cache.Set(CacheKey(model, texts[i]), vec)
		}
	}
	return result, nil
}

// call invokes the provider with a per-attempt timeout and bounded retries
func (a *Adapter) call(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := retry.Do(ctx, a.cfg.Retry, isTransient, func(ctx context.Context, attempt int) ([][]float32, error) {
		callCtx := ctx
		if a.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
			defer cancel()
		}

		vectors, err := a.provider.Embed(callCtx, texts)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: no response within %s: %w", ErrTransient, a.cfg.Timeout, err)
		}
		if err != nil && isTransient(err) {
			log.Debug().Err(err).Int("attempt", attempt).Int("texts", len(texts)).Msg("embedding call failed")
		}
		return vectors, err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %w", types.ErrProviderFailure, a.provider.Provider(), err)
	}
	return vectors, nil
}

func isTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// checkVector rejects vectors that must never be stored. The first good
// vector fixes the dimension when the provider did not declare one.
func (a *Adapter) checkVector(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", types.ErrProviderFailure)
	}
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: vector contains NaN or Inf", types.ErrProviderFailure)
		}
	}
	a.dimension.CompareAndSwap(0, int64(len(vec)))
	if want := int(a.dimension.Load()); len(vec) != want {
		return fmt.Errorf("%w: got %d dimensions, expected %d", types.ErrDimensionMismatch, len(vec), want)
	}
	return nil
}

// EmbedQuery embeds a single query text
func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	result, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if err := result.Errors[0]; err != nil {
		return nil, err
	}
	return result.Vectors[0], nil
}

// Verify checks provider availability; failure is fatal for a pipeline run
func (a *Adapter) Verify(ctx context.Context) error {
	callCtx := ctx
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}
	if err := a.provider.Verify(callCtx); err != nil {
		return fmt.Errorf("%w: %s verify: %w", types.ErrProviderFailure, a.provider.Provider(), err)
	}
	return nil
}

// Dimension returns the vector length, probing the provider once if needed
func (a *Adapter) Dimension(ctx context.Context) (int, error) {
	if dim := a.dimension.Load(); dim > 0 {
		return int(dim), nil
	}
	vec, err := a.EmbedQuery(ctx, "dimension probe")
	if err != nil {
		return 0, err
	}
	return len(vec), nil
}
