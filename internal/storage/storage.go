package storage

import (
	"context"
	"iter"

	"github.com/dshills/kaze/pkg/types"
)

// Storage defines the interface for persisting and querying embedded chunks
type Storage interface {
	// Collection operations
	EnsureCollection(ctx context.Context, name, model string, dimension int, recreate bool) (*types.Collection, error)
	GetCollection(ctx context.Context, name string) (*types.Collection, error)
	ListCollections(ctx context.Context) ([]*CollectionInfo, error)
	DropCollection(ctx context.Context, name string) error

	// File operations
	UpsertFileChunks(ctx context.Context, collection string, fp *types.Fingerprint, chunks []*types.Chunk) error
	DeleteFile(ctx context.Context, collection, filePath string) error
	GetFingerprint(ctx context.Context, collection, filePath string) (*types.Fingerprint, error)
	ListFingerprints(ctx context.Context, collection string) ([]*types.Fingerprint, error)

	// Chunk operations
	IterChunks(ctx context.Context, collection string, filter ChunkFilter) iter.Seq2[*types.Chunk, error]
	GetChunk(ctx context.Context, collection, key string) (*types.Chunk, error)
	GetChildren(ctx context.Context, collection, key string) ([]*types.Chunk, error)
	GetAncestors(ctx context.Context, collection, key string) ([]*types.Chunk, error)
	Stats(ctx context.Context, collection string) (*CollectionStats, error)

	// Ingest run bookkeeping
	BeginRun(ctx context.Context, collection string) (*types.IngestRun, error)
	RecordFailure(ctx context.Context, failure *types.IngestFailure) error
	FinishRun(ctx context.Context, run *types.IngestRun) error
	LastRun(ctx context.Context, collection string) (*types.IngestRun, error)
	ListFailures(ctx context.Context, runID string) ([]*types.IngestFailure, error)

	// Database operations
	Path() string
	SizeBytes(ctx context.Context) (int64, error)
	Close() error
}

// ChunkFilter narrows IterChunks. Zero values match everything.
type ChunkFilter struct {
	Types       []types.ChunkType
	FilePath    string // Exact relative path
	PathPrefix  string // Relative path prefix, e.g. "internal/"
	WithVectors bool   // Load embedding vectors
	WithContent bool   // Load chunk content
}

// CollectionInfo describes a collection together with its sizes
type CollectionInfo struct {
	types.Collection
	Files  int `json:"files"`
	Chunks int `json:"chunks"`
}

// FileCount is a file path with its chunk count
type FileCount struct {
	FilePath string `json:"file_path"`
	Chunks   int    `json:"chunks"`
}

// CollectionStats contains aggregate statistics about a collection
type CollectionStats struct {
	Collection  types.Collection        `json:"collection"`
	TotalChunks int                     `json:"total_chunks"`
	TotalFiles  int                     `json:"total_files"`
	ByType      map[types.ChunkType]int `json:"by_type"`
	TopFiles    []FileCount             `json:"top_files"`
	TopLevel    int                     `json:"top_level"`
	Nested      int                     `json:"nested"`
	DepthCounts map[int]int             `json:"depth_counts"` // depth 0 = top-level
	LastRun     *types.IngestRun        `json:"last_run,omitempty"`
}

// TopFilesLimit bounds CollectionStats.TopFiles
const TopFilesLimit = 10
