package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dshills/kaze/internal/chunker"
	"github.com/dshills/kaze/internal/embedder"
	"github.com/dshills/kaze/internal/storage"
	"github.com/dshills/kaze/pkg/types"
)

// Default batch sizes and size limits per extraction mode
const (
	DefaultFileBatchSize      = 10
	DefaultChunkBatchSize     = 20
	DefaultMaxFileSizeKB      = 8
	DefaultChunkMaxFileSizeKB = 100
)

// Collection names used when none is given
const (
	FilesCollection  = "files"
	ChunksCollection = "chunks"
)

// DefaultCollection returns the conventional collection for a mode
func DefaultCollection(mode chunker.Mode) string {
	if mode == chunker.ModeFiles {
		return FilesCollection
	}
	return ChunksCollection
}

// DefaultMaxFileSize returns the size limit in KB applied when a mode's
// config leaves it unset
func DefaultMaxFileSize(mode chunker.Mode) int {
	if mode == chunker.ModeFiles {
		return DefaultMaxFileSizeKB
	}
	return DefaultChunkMaxFileSizeKB
}

// Failure kinds recorded for files that could not be ingested
const (
	KindRead      = "read"
	KindExtract   = "extract"
	KindProvider  = "provider"
	KindDimension = "dimension"
	KindStore     = "store"
)

// Embedder is what the pipeline needs from the embedding adapter
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) (*embedder.BatchResult, error)
	Verify(ctx context.Context) error
	Dimension(ctx context.Context) (int, error)
	Model() string
}

// Indexer coordinates the ingestion pipeline: discover -> extract -> embed -> store
type Indexer struct {
	storage   storage.Storage
	extractor *chunker.Extractor
	embedder  Embedder
	lock      IndexLock
}

// Config contains configuration for one ingestion run
type Config struct {
	Collection    string
	Mode          chunker.Mode
	BatchSize     int // Texts per embedding call (default depends on Mode)
	Workers       int // Concurrent workers (default: runtime.NumCPU())
	MaxFileSizeKB int // 0 means DefaultMaxFileSize(Mode); negative disables the limit
	Include       []string
	Exclude       []string
	Force         bool // Re-embed files whose fingerprint matches
	Recreate      bool // Drop and recreate the collection first
	Sequential    bool // One file fully stored before the next starts
	NoPrune       bool // Keep entries for files that no longer exist
}

func (c *Config) applyDefaults() error {
	if c.Collection == "" {
		return fmt.Errorf("%w: collection is required", types.ErrInvalidRequest)
	}
	switch c.Mode {
	case "":
		c.Mode = chunker.ModeChunks
	case chunker.ModeFiles, chunker.ModeChunks:
	default:
		return fmt.Errorf("%w: unknown mode %q", types.ErrInvalidRequest, c.Mode)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultChunkBatchSize
		if c.Mode == chunker.ModeFiles {
			c.BatchSize = DefaultFileBatchSize
		}
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.MaxFileSizeKB == 0 {
		c.MaxFileSizeKB = DefaultMaxFileSize(c.Mode)
	}
	return nil
}

// Failure describes one file that was not ingested
type Failure struct {
	FilePath string `json:"file_path"`
	Kind     string `json:"kind"`
	Err      error  `json:"-"`
	Message  string `json:"message"`
}

// Statistics contains statistics about an ingestion run
type Statistics struct {
	RunID         string        `json:"run_id"`
	FilesScanned  int           `json:"files_scanned"`
	FilesIndexed  int           `json:"files_indexed"`
	FilesSkipped  int           `json:"files_skipped"` // Unchanged since the last run
	FilesIgnored  int           `json:"files_ignored"` // Empty, binary or over the size limit
	FilesFailed   int           `json:"files_failed"`
	FilesPruned   int           `json:"files_pruned"`
	ChunksCreated int           `json:"chunks_created"`
	BatchesFailed int           `json:"batches_failed"`
	Failures      []Failure     `json:"failures,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Err returns ErrPartialFailure when any file failed, nil otherwise
func (s *Statistics) Err() error {
	if s.FilesFailed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d files failed", types.ErrPartialFailure, s.FilesFailed, s.FilesScanned)
}

// pendingFile is a changed or new file whose content has been read
type pendingFile struct {
	SourceFile
	content []byte
	hash    string
}

func (p *pendingFile) fingerprint() *types.Fingerprint {
	return &types.Fingerprint{
		FilePath:    p.RelPath,
		ContentHash: p.hash,
		ModTime:     p.ModTime,
		SizeBytes:   p.Size,
	}
}

// run carries the state of one IndexProject call
type run struct {
	idx   *Indexer
	cfg   Config
	mu    sync.Mutex
	stats *Statistics
}

// plan is the work a run found to do
type plan struct {
	pending []*pendingFile
	deleted []string // Indexed files no longer on disk
}

func (p *plan) empty() bool {
	return len(p.pending) == 0 && len(p.deleted) == 0
}

// New creates a new Indexer. A nil extractor uses the default parsers.
func New(store storage.Storage, emb Embedder, extractor *chunker.Extractor) *Indexer {
	if extractor == nil {
		extractor = chunker.New(nil)
	}
	return &Indexer{
		storage:   store,
		extractor: extractor,
		embedder:  emb,
	}
}

// Running reports whether an ingestion run is active
func (idx *Indexer) Running() bool {
	return idx.lock.Running()
}

// IndexProject ingests every eligible file under root into cfg.Collection.
// A nil error with failed files is possible; check Statistics.Err.
func (idx *Indexer) IndexProject(ctx context.Context, root string, cfg Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	start := time.Now()
	r := &run{idx: idx, cfg: cfg, stats: &Statistics{}}

	// A missing or recreated collection needs the provider before anything else
	created := false
	coll, err := idx.storage.GetCollection(ctx, cfg.Collection)
	switch {
	case cfg.Recreate || errors.Is(err, types.ErrNotFound):
		if coll, err = idx.prepareCollection(ctx, cfg.Collection, cfg.Recreate); err != nil {
			return nil, err
		}
		created = true
	case err != nil:
		return nil, err
	case coll.Model != idx.embedder.Model():
		return nil, fmt.Errorf("%w: collection %s was built with %s, embedder uses %s (recreate to switch)",
			types.ErrSchemaMismatch, coll.Name, coll.Model, idx.embedder.Model())
	}

	work, err := r.plan(ctx, root, coll.Name)
	if err != nil {
		return nil, err
	}

	// Nothing to do leaves the store untouched, run log included
	if !created && work.empty() && r.stats.FilesFailed == 0 {
		r.stats.Duration = time.Since(start)
		log.Info().
			Str("collection", cfg.Collection).
			Int("skipped", r.stats.FilesSkipped).
			Dur("duration", r.stats.Duration).
			Msg("index up to date")
		return r.stats, nil
	}

	ingest, err := idx.storage.BeginRun(ctx, cfg.Collection)
	if err != nil {
		return nil, err
	}
	r.stats.RunID = ingest.ID

	runErr := r.apply(ctx, coll.Name, work, created)

	r.stats.Duration = time.Since(start)
	r.finishRun(ctx, ingest)

	if runErr != nil {
		return r.stats, runErr
	}

	log.Info().
		Str("collection", cfg.Collection).
		Int("indexed", r.stats.FilesIndexed).
		Int("skipped", r.stats.FilesSkipped).
		Int("failed", r.stats.FilesFailed).
		Int("pruned", r.stats.FilesPruned).
		Int("chunks", r.stats.ChunksCreated).
		Dur("duration", r.stats.Duration).
		Msg("indexing complete")
	return r.stats, nil
}

// finishRun persists the run's failures and totals. Bookkeeping must survive
// a cancelled run.
func (r *run) finishRun(ctx context.Context, ingest *types.IngestRun) {
	ctx = context.WithoutCancel(ctx)
	for _, f := range r.stats.Failures {
		rec := &types.IngestFailure{RunID: ingest.ID, FilePath: f.FilePath, Kind: f.Kind, Message: f.Message}
		if err := r.idx.storage.RecordFailure(ctx, rec); err != nil {
			log.Warn().Err(err).Str("file", f.FilePath).Msg("failed to record failure")
		}
	}

	ingest.FinishedAt = time.Now()
	ingest.Processed = r.stats.FilesIndexed
	ingest.Skipped = r.stats.FilesSkipped
	ingest.Failed = r.stats.FilesFailed
	ingest.Pruned = r.stats.FilesPruned
	ingest.Chunks = r.stats.ChunksCreated
	if err := r.idx.storage.FinishRun(ctx, ingest); err != nil {
		log.Warn().Err(err).Str("run", ingest.ID).Msg("failed to finish ingest run")
	}
}

// prepareCollection verifies the provider and creates the collection with
// its dimension. Verification failure is fatal.
func (idx *Indexer) prepareCollection(ctx context.Context, name string, recreate bool) (*types.Collection, error) {
	if err := idx.embedder.Verify(ctx); err != nil {
		return nil, err
	}
	dim, err := idx.embedder.Dimension(ctx)
	if err != nil {
		return nil, fmt.Errorf("determine embedding dimension: %w", err)
	}
	return idx.storage.EnsureCollection(ctx, name, idx.embedder.Model(), dim, recreate)
}

// plan discovers files and compares them with the stored fingerprints
// without writing anything
func (r *run) plan(ctx context.Context, root, collection string) (*plan, error) {
	maxKB := r.cfg.MaxFileSizeKB
	if maxKB < 0 {
		maxKB = 0
	}
	found, err := Discover(root, DiscoverOptions{
		Include:       r.cfg.Include,
		Exclude:       r.cfg.Exclude,
		MaxFileSizeKB: maxKB,
	})
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}
	r.stats.FilesScanned = len(found.Files) + len(found.Oversized)
	r.stats.FilesIgnored = len(found.Oversized)

	known, err := r.idx.storage.ListFingerprints(ctx, collection)
	if err != nil {
		return nil, err
	}
	fingerprints := make(map[string]*types.Fingerprint, len(known))
	for _, fp := range known {
		fingerprints[fp.FilePath] = fp
	}

	work := &plan{}
	if work.pending, err = r.detectChanges(ctx, found.Files, fingerprints); err != nil {
		return nil, err
	}
	if !r.cfg.NoPrune {
		work.deleted = deletedFiles(root, fingerprints)
	}
	return work, nil
}

func (r *run) apply(ctx context.Context, collection string, work *plan, verified bool) error {
	if len(work.pending) > 0 {
		if !verified {
			if _, err := r.idx.prepareCollection(ctx, collection, false); err != nil {
				return err
			}
		}
		var err error
		if r.cfg.Sequential {
			err = r.processSequential(ctx, collection, work.pending)
		} else {
			err = r.processConcurrent(ctx, collection, work.pending)
		}
		if err != nil {
			return err
		}
	}
	return r.prune(ctx, collection, work.deleted)
}

// detectChanges reads every discovered file and keeps those whose content
// differs from the stored fingerprint
func (r *run) detectChanges(ctx context.Context, files []SourceFile, fingerprints map[string]*types.Fingerprint) ([]*pendingFile, error) {
	var pending []*pendingFile
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := os.ReadFile(f.Path)
		if err != nil {
			r.fail(f.RelPath, KindRead, err)
			continue
		}
		if len(content) == 0 || IsBinary(content) {
			log.Debug().Str("file", f.RelPath).Msg("ignoring empty or binary file")
			r.stats.FilesIgnored++
			continue
		}

		hash := types.HashContent(content)
		if fp, ok := fingerprints[f.RelPath]; ok && fp.ContentHash == hash && !r.cfg.Force {
			r.stats.FilesSkipped++
			continue
		}
		pending = append(pending, &pendingFile{SourceFile: f, content: content, hash: hash})
	}
	return pending, nil
}

// processSequential parses, embeds and stores one file before the next
func (r *run) processSequential(ctx context.Context, collection string, pending []*pendingFile) error {
	for _, pf := range pending {
		chunks, err := r.idx.extractor.ExtractFile(ctx, pf.RelPath, pf.content, r.cfg.Mode)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.fail(pf.RelPath, KindExtract, err)
			continue
		}

		kind, err := r.embedChunks(ctx, chunks)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.fail(pf.RelPath, kind, err)
			continue
		}

		if err := r.store(ctx, collection, pf, chunks); err != nil {
			return err
		}
	}
	return nil
}

// embedChunks fills chunk vectors batch by batch. Any failure fails the file.
func (r *run) embedChunks(ctx context.Context, chunks []*types.Chunk) (string, error) {
	for start := 0; start < len(chunks); start += r.cfg.BatchSize {
		batch := chunks[start:min(start+r.cfg.BatchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		result, err := r.idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			r.mu.Lock()
			r.stats.BatchesFailed++
			r.mu.Unlock()
			return KindProvider, err
		}
		for i, c := range batch {
			if err := result.Errors[i]; err != nil {
				return failureKind(err), fmt.Errorf("chunk %s: %w", c.Key, err)
			}
			c.Vector = result.Vectors[i]
		}
	}
	return "", nil
}

// store writes a file's chunk set. Only an unavailable store aborts the run.
func (r *run) store(ctx context.Context, collection string, pf *pendingFile, chunks []*types.Chunk) error {
	err := r.idx.storage.UpsertFileChunks(ctx, collection, pf.fingerprint(), chunks)
	switch {
	case err == nil:
		r.mu.Lock()
		r.stats.FilesIndexed++
		r.stats.ChunksCreated += len(chunks)
		r.mu.Unlock()
		log.Debug().Str("file", pf.RelPath).Int("chunks", len(chunks)).Msg("stored file")
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, types.ErrStoreUnavailable):
		return err
	case errors.Is(err, types.ErrDimensionMismatch):
		r.fail(pf.RelPath, KindDimension, err)
	default:
		r.fail(pf.RelPath, KindStore, err)
	}
	return nil
}

func failureKind(err error) string {
	if errors.Is(err, types.ErrDimensionMismatch) {
		return KindDimension
	}
	return KindProvider
}

// fail records a file failure; the run log receives it when the run finishes
func (r *run) fail(relPath, kind string, err error) {
	log.Warn().Err(err).Str("file", relPath).Str("kind", kind).Msg("file not indexed")

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.FilesFailed++
	r.stats.Failures = append(r.stats.Failures, Failure{
		FilePath: relPath,
		Kind:     kind,
		Err:      err,
		Message:  err.Error(),
	})
}

// deletedFiles lists indexed files that no longer exist under root. Files
// that still exist but were filtered out this run are not included.
func deletedFiles(root string, fingerprints map[string]*types.Fingerprint) []string {
	var gone []string
	for rel := range fingerprints {
		_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		if errors.Is(err, fs.ErrNotExist) {
			gone = append(gone, rel)
		}
	}
	slices.Sort(gone)
	return gone
}

// prune removes the entries of deleted files
func (r *run) prune(ctx context.Context, collection string, deleted []string) error {
	for _, rel := range deleted {
		if err := r.idx.storage.DeleteFile(ctx, collection, rel); err != nil {
			return fmt.Errorf("prune %s: %w", rel, err)
		}
		log.Debug().Str("file", rel).Msg("pruned deleted file")
		r.stats.FilesPruned++
	}
	return nil
}
