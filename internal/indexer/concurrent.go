package indexer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/kaze/pkg/types"
)

// fileJob tracks one file through the concurrent pipeline
type fileJob struct {
	file      *pendingFile
	chunks    []*types.Chunk
	remaining atomic.Int32 // Batches still outstanding

	mu   sync.Mutex
	kind string
	err  error // First failure, if any
}

func (j *fileJob) setErr(kind string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err == nil {
		j.kind, j.err = kind, err
	}
}

func (j *fileJob) failure() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.kind, j.err
}

// batchItem points at one chunk of one file
type batchItem struct {
	job   *fileJob
	chunk *types.Chunk
}

// processConcurrent extracts files in parallel, packs their texts into
// cross-file batches and embeds those with a bounded worker pool. Each file
// is stored as soon as its last batch completes; a failed batch fails every
// file it touches and leaves their fingerprints unchanged.
func (r *run) processConcurrent(ctx context.Context, collection string, pending []*pendingFile) error {
	jobs, err := r.extractAll(ctx, pending)
	if err != nil {
		return err
	}

	batches := packBatches(jobs, r.cfg.BatchSize)
	for _, job := range jobs {
		if len(job.chunks) == 0 {
			if err := r.finish(ctx, collection, job); err != nil {
				return err
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, batch := range batches {
		g.Go(func() error {
			return r.embedBatch(gctx, collection, batch)
		})
	}
	return g.Wait()
}

// extractAll runs extraction with bounded parallelism. Files that fail to
// extract are recorded and left out.
func (r *run) extractAll(ctx context.Context, pending []*pendingFile) ([]*fileJob, error) {
	jobs := make([]*fileJob, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, pf := range pending {
		g.Go(func() error {
			chunks, err := r.idx.extractor.ExtractFile(gctx, pf.RelPath, pf.content, r.cfg.Mode)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.fail(pf.RelPath, KindExtract, err)
				return nil
			}
			jobs[i] = &fileJob{file: pf, chunks: chunks}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := jobs[:0]
	for _, j := range jobs {
		if j != nil {
			out = append(out, j)
		}
	}
	return out, nil
}

// packBatches fills batches of size n in file order, chunks of one file
// staying contiguous. Each job learns how many batches it spans.
func packBatches(jobs []*fileJob, n int) [][]batchItem {
	var batches [][]batchItem
	var cur []batchItem
	for _, job := range jobs {
		lastBatch := -1
		for _, c := range job.chunks {
			cur = append(cur, batchItem{job: job, chunk: c})
			if idx := len(batches); idx != lastBatch {
				lastBatch = idx
				job.remaining.Add(1)
			}
			if len(cur) == n {
				batches = append(batches, cur)
				cur = nil
			}
		}
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

func (r *run) embedBatch(ctx context.Context, collection string, batch []batchItem) error {
	texts := make([]string, len(batch))
	for i, item := range batch {
		texts[i] = item.chunk.Content
	}

	result, err := r.idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.mu.Lock()
		r.stats.BatchesFailed++
		r.mu.Unlock()
		for _, item := range batch {
			item.job.setErr(KindProvider, err)
		}
	} else {
		for i, item := range batch {
			if itemErr := result.Errors[i]; itemErr != nil {
				item.job.setErr(failureKind(itemErr), fmt.Errorf("chunk %s: %w", item.chunk.Key, itemErr))
				continue
			}
			item.chunk.Vector = result.Vectors[i]
		}
	}

	// Finish each file whose last outstanding batch this was
	var last *fileJob
	for _, item := range batch {
		if item.job == last {
			continue
		}
		last = item.job
		if item.job.remaining.Add(-1) > 0 {
			continue
		}
		if err := r.finish(ctx, collection, item.job); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) finish(ctx context.Context, collection string, job *fileJob) error {
	if kind, err := job.failure(); err != nil {
		r.fail(job.file.RelPath, kind, err)
		return nil
	}
	return r.store(ctx, collection, job.file, job.chunks)
}
