package searcher

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dshills/kaze/internal/storage"
	"github.com/dshills/kaze/pkg/types"
)

// Defaults shared by the CLI and the MCP tools
const (
	DefaultLimit     = 10
	DefaultThreshold = 0.2
)

// QueryEmbedder turns query text into a vector
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Request contains parameters for a similarity query
type Request struct {
	Collection string
	Vector     []float32
	Limit      int
	Threshold  float64
	Types      []types.ChunkType // Empty matches every type
	Model      string            // When set, only chunks embedded with this model are scored
	Expand     types.ExpandMode
}

// Response carries ranked results and query metadata
type Response struct {
	Results  []types.QueryResult `json:"results"`
	Scanned  int                 `json:"scanned"`
	Matched  int                 `json:"matched"` // Scored at or above the threshold, before truncation
	Duration time.Duration       `json:"duration"`
}

// Searcher ranks stored chunks against a query vector
type Searcher struct {
	storage  storage.Storage
	embedder QueryEmbedder
}

// New creates a Searcher. embedder may be nil when only Query is used.
func New(store storage.Storage, embedder QueryEmbedder) *Searcher {
	return &Searcher{storage: store, embedder: embedder}
}

func validateRequest(req *Request) error {
	if req.Collection == "" {
		return fmt.Errorf("%w: collection is required", types.ErrInvalidRequest)
	}
	if len(req.Vector) == 0 {
		return fmt.Errorf("%w: query vector is empty", types.ErrInvalidRequest)
	}
	if req.Limit < 1 {
		return fmt.Errorf("%w: limit must be at least 1, got %d", types.ErrInvalidRequest, req.Limit)
	}
	if math.IsNaN(req.Threshold) || req.Threshold < 0 || req.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be within [0, 1], got %v", types.ErrInvalidRequest, req.Threshold)
	}
	switch req.Expand {
	case "":
		req.Expand = types.ExpandNone
	case types.ExpandNone, types.ExpandChildren, types.ExpandAncestors:
	default:
		return fmt.Errorf("%w: unknown expand mode %q", types.ErrInvalidRequest, req.Expand)
	}
	return nil
}

type scored struct {
	key   string
	score float64
}

// Query scores every chunk of the collection against req.Vector and returns
// those at or above the threshold, best first, ties broken by key.
func (s *Searcher) Query(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	coll, err := s.storage.GetCollection(ctx, req.Collection)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) != coll.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %s expects %d",
			types.ErrDimensionMismatch, len(req.Vector), coll.Name, coll.Dimension)
	}

	resp := &Response{}
	var hits []scored
	filter := storage.ChunkFilter{Types: req.Types, WithVectors: true}
	for chunk, err := range s.storage.IterChunks(ctx, req.Collection, filter) {
		if err != nil {
			return nil, err
		}
		if req.Model != "" && chunk.Model != req.Model {
			continue
		}
		resp.Scanned++

		score, err := CosineSimilarity(req.Vector, chunk.Vector)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", chunk.Key, err)
		}
		if score >= req.Threshold {
			hits = append(hits, scored{key: chunk.Key, score: score})
		}
	}
	resp.Matched = len(hits)

	slices.SortFunc(hits, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return strings.Compare(a.key, b.key)
	})
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}

	resp.Results = make([]types.QueryResult, 0, len(hits))
	for i, hit := range hits {
		chunk, err := s.storage.GetChunk(ctx, req.Collection, hit.key)
		if err != nil {
			return nil, err
		}
		result := types.QueryResult{Rank: i + 1, Score: hit.score, Chunk: chunk}
		if err := s.expand(ctx, req, &result); err != nil {
			return nil, err
		}
		resp.Results = append(resp.Results, result)
	}

	resp.Duration = time.Since(start)
	log.Debug().
		Str("collection", req.Collection).
		Int("scanned", resp.Scanned).
		Int("matched", resp.Matched).
		Int("returned", len(resp.Results)).
		Dur("duration", resp.Duration).
		Msg("query complete")
	return resp, nil
}

// expand attaches related chunks; it never changes rank or count
func (s *Searcher) expand(ctx context.Context, req Request, result *types.QueryResult) error {
	var err error
	switch req.Expand {
	case types.ExpandChildren:
		result.Children, err = s.storage.GetChildren(ctx, req.Collection, result.Chunk.Key)
	case types.ExpandAncestors:
		result.Ancestors, err = s.storage.GetAncestors(ctx, req.Collection, result.Chunk.Key)
	}
	return err
}

// Search embeds text and queries with it. The query is embedded with the
// searcher's embedder, which must use the collection's model.
func (s *Searcher) Search(ctx context.Context, text string, req Request) (*Response, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query text is empty", types.ErrInvalidRequest)
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", types.ErrInvalidRequest)
	}

	coll, err := s.storage.GetCollection(ctx, req.Collection)
	if err != nil {
		return nil, err
	}
	if model := s.embedder.Model(); model != coll.Model {
		return nil, fmt.Errorf("%w: collection %s was built with %s, query model is %s",
			types.ErrSchemaMismatch, coll.Name, coll.Model, model)
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	req.Vector = vector
	req.Model = coll.Model
	return s.Query(ctx, req)
}

// Best returns the single highest scoring chunk, or ErrNotFound when nothing
// reaches the threshold
func (s *Searcher) Best(ctx context.Context, text string, req Request) (*types.QueryResult, error) {
	req.Limit = 1
	resp, err := s.Search(ctx, text, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: no chunk scored at or above %.2f", types.ErrNotFound, req.Threshold)
	}
	return &resp.Results[0], nil
}

// CosineSimilarity returns dot(a,b) / (|a||b|), clamped to [-1, 1]. A zero
// vector on either side scores 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", types.ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return max(-1, min(1, score)), nil
}

// ContextLines trims content to 2*around lines centered on the middle of the
// chunk. It returns the excerpt and the 1-based file line it starts on.
// around <= 0, or a chunk already that short, returns the whole content.
func ContextLines(chunk *types.Chunk, around int) (string, int) {
	lines := strings.Split(chunk.Content, "\n")
	if around <= 0 || len(lines) <= around*2 {
		return chunk.Content, chunk.StartLine
	}

	middle := len(lines) / 2
	start := max(0, middle-around)
	end := min(len(lines), middle+around)
	return strings.Join(lines[start:end], "\n"), chunk.StartLine + start
}
