package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/kaze/internal/chunker"
	"github.com/dshills/kaze/internal/embedder"
	"github.com/dshills/kaze/internal/parser"
	"github.com/dshills/kaze/internal/storage"
	"github.com/dshills/kaze/pkg/types"
)

const testDim = 4

// mockEmbedder records every batch and can fail batches on demand
type mockEmbedder struct {
	mu          sync.Mutex
	model       string
	batches     [][]string
	verifyCalls int
	verifyErr   error
	failOn      func(texts []string) error
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{model: "mock-model"}
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) (*embedder.BatchResult, error) {
	m.mu.Lock()
	m.batches = append(m.batches, texts)
	failOn := m.failOn
	m.mu.Unlock()

	if failOn != nil {
		if err := failOn(texts); err != nil {
			return nil, err
		}
	}

	result := &embedder.BatchResult{
		Vectors: make([][]float32, len(texts)),
		Errors:  make([]error, len(texts)),
	}
	for i, text := range texts {
		result.Vectors[i] = []float32{float32(len(text)), float32(strings.Count(text, "\n")), 1, 0.5}
	}
	return result, nil
}

func (m *mockEmbedder) Verify(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyCalls++
	return m.verifyErr
}

func (m *mockEmbedder) Dimension(ctx context.Context) (int, error) { return testDim, nil }
func (m *mockEmbedder) Model() string                              { return m.model }

func (m *mockEmbedder) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func setupTestStorage(t testing.TB) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), ".kaze", "embeddings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createTestFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// newTestIndexer uses only the Go parser so results do not depend on cgo
func newTestIndexer(store storage.Storage, emb Embedder) *Indexer {
	return New(store, emb, chunker.New(parser.NewRegistry(parser.NewGoParser())))
}

func fileKeys(t *testing.T, store storage.Storage, collection, file string) []string {
	t.Helper()
	var keys []string
	for c, err := range store.IterChunks(context.Background(), collection, storage.ChunkFilter{FilePath: file}) {
		require.NoError(t, err)
		keys = append(keys, c.Key)
	}
	return keys
}

func modes() []struct {
	name       string
	sequential bool
} {
	return []struct {
		name       string
		sequential bool
	}{
		{"sequential", true},
		{"concurrent", false},
	}
}

func TestIndexProject_FilesMode(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "a.py", "print('a')\n")
	createTestFile(t, root, "src/b.py", "print('b')\n")
	createTestFile(t, root, "empty.txt", "")
	createTestFile(t, root, "blob.bin", "ab\x00cd")
	createTestFile(t, root, "node_modules/dep/index.js", "module.exports = 1\n")
	createTestFile(t, root, ".hidden/secret.py", "x = 1\n")

	store := setupTestStorage(t)
	emb := newMockEmbedder()
	stats, err := newTestIndexer(store, emb).IndexProject(context.Background(), root, Config{
		Collection: "files",
		Mode:       chunker.ModeFiles,
	})
	require.NoError(t, err)
	require.NoError(t, stats.Err())

	assert.Equal(t, 4, stats.FilesScanned)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Equal(t, 2, stats.FilesIgnored)
	assert.Equal(t, 2, stats.ChunksCreated)
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 1, emb.verifyCalls)

	assert.Equal(t, []string{"a.py:file:a.py:0"}, fileKeys(t, store, "files", "a.py"))
	assert.Equal(t, []string{"src/b.py:file:b.py:0"}, fileKeys(t, store, "files", "src/b.py"))

	coll, err := store.GetCollection(context.Background(), "files")
	require.NoError(t, err)
	assert.Equal(t, "mock-model", coll.Model)
	assert.Equal(t, testDim, coll.Dimension)

	last, err := store.LastRun(context.Background(), "files")
	require.NoError(t, err)
	assert.Equal(t, stats.RunID, last.ID)
	assert.Equal(t, 2, last.Processed)
}

func TestIndexProject_IdempotentRerun(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "a.go", "package a\n\nfunc A() {}\n")
	createTestFile(t, root, "b.go", "package a\n\nfunc B() {}\n")

	store := setupTestStorage(t)
	emb := newMockEmbedder()
	idx := newTestIndexer(store, emb)
	ctx := context.Background()
	cfg := Config{Collection: "chunks"}

	first, err := idx.IndexProject(ctx, root, cfg)
	require.NoError(t, err)
	callsAfterFirst := emb.batchCount()
	before, err := store.GetFingerprint(ctx, "chunks", "a.go")
	require.NoError(t, err)
	chunkBefore, err := store.GetChunk(ctx, "chunks", "a.go:function:A:2")
	require.NoError(t, err)

	stats, err := idx.IndexProject(ctx, root, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesSkipped)
	assert.Zero(t, stats.FilesIndexed)
	assert.Equal(t, callsAfterFirst, emb.batchCount(), "no embedding calls for unchanged files")
	assert.Equal(t, 1, emb.verifyCalls, "provider untouched when nothing changed")
	assert.Empty(t, stats.RunID, "no run is logged when nothing changed")

	last, err := store.LastRun(ctx, "chunks")
	require.NoError(t, err)
	assert.Equal(t, first.RunID, last.ID)

	after, err := store.GetFingerprint(ctx, "chunks", "a.go")
	require.NoError(t, err)
	assert.Equal(t, before.IndexedAt, after.IndexedAt)
	chunkAfter, err := store.GetChunk(ctx, "chunks", "a.go:function:A:2")
	require.NoError(t, err)
	assert.Equal(t, chunkBefore.UpdatedAt, chunkAfter.UpdatedAt)
}

func TestIndexProject_ChangedFileReplacesChunks(t *testing.T) {
	for _, mode := range modes() {
		t.Run(mode.name, func(t *testing.T) {
			root := t.TempDir()
			createTestFile(t, root, "util.go", "package util\n\nfunc Old() {}\n\nfunc Keep() {}\n")
			createTestFile(t, root, "other.go", "package util\n\nfunc Other() {}\n")

			store := setupTestStorage(t)
			idx := newTestIndexer(store, newMockEmbedder())
			ctx := context.Background()
			cfg := Config{Collection: "chunks", Sequential: mode.sequential, BatchSize: 2}

			_, err := idx.IndexProject(ctx, root, cfg)
			require.NoError(t, err)
			assert.Equal(t, []string{"util.go:function:Old:2", "util.go:function:Keep:4"}, fileKeys(t, store, "chunks", "util.go"))

			createTestFile(t, root, "util.go", "package util\n\nfunc Keep() {}\n\nfunc New1() {}\n\nfunc New2() {}\n")
			stats, err := idx.IndexProject(ctx, root, cfg)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.FilesIndexed)
			assert.Equal(t, 1, stats.FilesSkipped)
			assert.Equal(t, 3, stats.ChunksCreated)

			assert.Equal(t, []string{
				"util.go:function:Keep:2",
				"util.go:function:New1:4",
				"util.go:function:New2:6",
			}, fileKeys(t, store, "chunks", "util.go"))

			_, err = store.GetChunk(ctx, "chunks", "util.go:function:Old:2")
			assert.ErrorIs(t, err, types.ErrNotFound)

			fp, err := store.GetFingerprint(ctx, "chunks", "util.go")
			require.NoError(t, err)
			assert.Equal(t, 3, fp.ChunkCount)
		})
	}
}

func TestIndexProject_FailedBatchKeepsPriorFingerprint(t *testing.T) {
	for _, mode := range modes() {
		t.Run(mode.name, func(t *testing.T) {
			root := t.TempDir()
			for _, name := range []string{"a", "b", "c"} {
				createTestFile(t, root, name+".txt", "file "+name+" v1\n")
			}

			store := setupTestStorage(t)
			emb := newMockEmbedder()
			idx := newTestIndexer(store, emb)
			ctx := context.Background()
			cfg := Config{Collection: "files", Mode: chunker.ModeFiles, BatchSize: 1, Sequential: mode.sequential}

			_, err := idx.IndexProject(ctx, root, cfg)
			require.NoError(t, err)
			original, err := store.GetFingerprint(ctx, "files", "b.txt")
			require.NoError(t, err)

			for _, name := range []string{"a", "b", "c"} {
				createTestFile(t, root, name+".txt", "file "+name+" v2\n")
			}
			emb.failOn = func(texts []string) error {
				for _, text := range texts {
					if strings.HasPrefix(text, "file b") {
						return fmt.Errorf("%w: timed out", types.ErrProviderFailure)
					}
				}
				return nil
			}

			stats, err := idx.IndexProject(ctx, root, cfg)
			require.NoError(t, err)
			assert.ErrorIs(t, stats.Err(), types.ErrPartialFailure)
			assert.Equal(t, 2, stats.FilesIndexed)
			assert.Equal(t, 1, stats.FilesFailed)
			assert.Equal(t, 1, stats.BatchesFailed)
			require.Len(t, stats.Failures, 1)
			assert.Equal(t, "b.txt", stats.Failures[0].FilePath)
			assert.Equal(t, KindProvider, stats.Failures[0].Kind)
			assert.ErrorIs(t, stats.Failures[0].Err, types.ErrProviderFailure)

			for _, name := range []string{"a", "c"} {
				c, err := store.GetChunk(ctx, "files", name+".txt:file:"+name+".txt:0")
				require.NoError(t, err)
				assert.Equal(t, "file "+name+" v2\n", c.Content)
			}
			b, err := store.GetChunk(ctx, "files", "b.txt:file:b.txt:0")
			require.NoError(t, err)
			assert.Equal(t, "file b v1\n", b.Content)

			fp, err := store.GetFingerprint(ctx, "files", "b.txt")
			require.NoError(t, err)
			assert.Equal(t, original.ContentHash, fp.ContentHash)

			failures, err := store.ListFailures(ctx, stats.RunID)
			require.NoError(t, err)
			require.Len(t, failures, 1)
			assert.Equal(t, "b.txt", failures[0].FilePath)

			// Next run retries only the failed file
			emb.failOn = nil
			stats, err = idx.IndexProject(ctx, root, cfg)
			require.NoError(t, err)
			assert.NoError(t, stats.Err())
			assert.Equal(t, 1, stats.FilesIndexed)
			assert.Equal(t, 2, stats.FilesSkipped)
		})
	}
}

func TestIndexProject_FileSpanningBatches(t *testing.T) {
	var src strings.Builder
	src.WriteString("package big\n")
	for i := 0; i < 7; i++ {
		fmt.Fprintf(&src, "\nfunc F%d() {}\n", i)
	}
	root := t.TempDir()
	createTestFile(t, root, "big.go", src.String())
	createTestFile(t, root, "small.go", "package big\n\nfunc S() {}\n")

	store := setupTestStorage(t)
	emb := newMockEmbedder()
	stats, err := newTestIndexer(store, emb).IndexProject(context.Background(), root, Config{
		Collection: "chunks",
		BatchSize:  3,
		Workers:    4,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Equal(t, 8, stats.ChunksCreated)
	assert.Len(t, fileKeys(t, store, "chunks", "big.go"), 7)
	assert.Equal(t, 3, emb.batchCount(), "8 texts in batches of 3")
}

func TestIndexProject_VerifyFailureIsFatal(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "a.go", "package a\n")

	store := setupTestStorage(t)
	emb := newMockEmbedder()
	emb.verifyErr = fmt.Errorf("%w: connection refused", types.ErrProviderFailure)

	_, err := newTestIndexer(store, emb).IndexProject(context.Background(), root, Config{Collection: "chunks"})
	assert.ErrorIs(t, err, types.ErrProviderFailure)
	assert.Zero(t, emb.batchCount())

	_, err = store.GetCollection(context.Background(), "chunks")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestIndexProject_VerifiesExistingCollectionBeforeWork(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "a.go", "package a\n")

	store := setupTestStorage(t)
	emb := newMockEmbedder()
	idx := newTestIndexer(store, emb)
	_, err := idx.IndexProject(context.Background(), root, Config{Collection: "chunks"})
	require.NoError(t, err)

	createTestFile(t, root, "a.go", "package a\n\nvar X = 1\n")
	emb.verifyErr = errors.New("down")
	_, err = idx.IndexProject(context.Background(), root, Config{Collection: "chunks"})
	require.Error(t, err)
	assert.Equal(t, 1, emb.batchCount())
}

func TestIndexProject_Prune(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "a.go", "package a\n\nfunc A() {}\n")
	gone := createTestFile(t, root, "gone.go", "package a\n\nfunc G() {}\n")
	createTestFile(t, root, "big.go", "package a\n\nfunc Big() {}\n")

	store := setupTestStorage(t)
	idx := newTestIndexer(store, newMockEmbedder())
	ctx := context.Background()

	_, err := idx.IndexProject(ctx, root, Config{Collection: "chunks"})
	require.NoError(t, err)

	require.NoError(t, os.Remove(gone))
	stats, err := idx.IndexProject(ctx, root, Config{Collection: "chunks", Exclude: []string{"big.go"}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesPruned)
	assert.NotEmpty(t, stats.RunID, "a deletion alone is a change")

	_, err = store.GetFingerprint(ctx, "chunks", "gone.go")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Empty(t, fileKeys(t, store, "chunks", "gone.go"))

	// Filtered out but still on disk: kept
	_, err = store.GetFingerprint(ctx, "chunks", "big.go")
	assert.NoError(t, err)
}

func TestIndexProject_ForceAndRecreate(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "a.go", "package a\n\nfunc A() {}\n")

	store := setupTestStorage(t)
	emb := newMockEmbedder()
	idx := newTestIndexer(store, emb)
	ctx := context.Background()

	_, err := idx.IndexProject(ctx, root, Config{Collection: "chunks"})
	require.NoError(t, err)

	stats, err := idx.IndexProject(ctx, root, Config{Collection: "chunks", Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 2, emb.batchCount())

	// Switching models needs recreate
	other := newMockEmbedder()
	other.model = "other-model"
	idx = newTestIndexer(store, other)
	_, err = idx.IndexProject(ctx, root, Config{Collection: "chunks"})
	assert.ErrorIs(t, err, types.ErrSchemaMismatch)

	stats, err = idx.IndexProject(ctx, root, Config{Collection: "chunks", Recreate: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)

	coll, err := store.GetCollection(ctx, "chunks")
	require.NoError(t, err)
	assert.Equal(t, "other-model", coll.Model)
}

func TestIndexProject_RejectsConcurrentRun(t *testing.T) {
	idx := newTestIndexer(setupTestStorage(t), newMockEmbedder())
	require.True(t, idx.lock.TryAcquire())
	assert.True(t, idx.Running())

	_, err := idx.IndexProject(context.Background(), t.TempDir(), Config{Collection: "chunks"})
	assert.ErrorIs(t, err, ErrIndexInProgress)

	idx.lock.Release()
	assert.False(t, idx.Running())
	_, err = idx.IndexProject(context.Background(), t.TempDir(), Config{Collection: "chunks"})
	assert.NoError(t, err)
}

func TestIndexProject_Cancelled(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "a.go", "package a\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestIndexer(setupTestStorage(t), newMockEmbedder()).IndexProject(ctx, root, Config{Collection: "chunks"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndexProject_InvalidConfig(t *testing.T) {
	idx := newTestIndexer(setupTestStorage(t), newMockEmbedder())

	_, err := idx.IndexProject(context.Background(), t.TempDir(), Config{})
	assert.ErrorIs(t, err, types.ErrInvalidRequest)

	_, err = idx.IndexProject(context.Background(), t.TempDir(), Config{Collection: "c", Mode: "lines"})
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{Collection: "files", Mode: chunker.ModeFiles}
	require.NoError(t, cfg.applyDefaults())
	assert.Equal(t, DefaultFileBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultMaxFileSizeKB, cfg.MaxFileSizeKB)
	assert.Positive(t, cfg.Workers)

	cfg = Config{Collection: "chunks"}
	require.NoError(t, cfg.applyDefaults())
	assert.Equal(t, chunker.ModeChunks, cfg.Mode)
	assert.Equal(t, DefaultChunkBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultChunkMaxFileSizeKB, cfg.MaxFileSizeKB)

	cfg = Config{Collection: "chunks", MaxFileSizeKB: 12}
	require.NoError(t, cfg.applyDefaults())
	assert.Equal(t, 12, cfg.MaxFileSizeKB)

	assert.Equal(t, "files", DefaultCollection(chunker.ModeFiles))
	assert.Equal(t, "chunks", DefaultCollection(chunker.ModeChunks))
}

func TestPackBatches(t *testing.T) {
	job := func(n int) *fileJob {
		j := &fileJob{}
		for i := 0; i < n; i++ {
			j.chunks = append(j.chunks, &types.Chunk{Key: fmt.Sprint(i)})
		}
		return j
	}
	a, b, c := job(2), job(5), job(1)

	batches := packBatches([]*fileJob{a, b, c}, 3)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 3)
	assert.Len(t, batches[2], 2)

	assert.Equal(t, int32(1), a.remaining.Load())
	assert.Equal(t, int32(3), b.remaining.Load())
	assert.Equal(t, int32(1), c.remaining.Load())
}

func TestStatistics_Err(t *testing.T) {
	assert.NoError(t, (&Statistics{FilesIndexed: 3}).Err())
	err := (&Statistics{FilesScanned: 3, FilesFailed: 1}).Err()
	assert.ErrorIs(t, err, types.ErrPartialFailure)
	assert.Contains(t, err.Error(), "1 of 3")
}

func TestIndexProject_SizeLimitPerMode(t *testing.T) {
	var src strings.Builder
	src.WriteString("package big\n")
	for i := 0; src.Len() < 20*1024; i++ {
		fmt.Fprintf(&src, "\n// F%d returns its index.\nfunc F%d() int {\n\treturn %d\n}\n", i, i, i)
	}
	root := t.TempDir()
	createTestFile(t, root, "big.go", src.String())
	createTestFile(t, root, "small.go", "package big\n\nfunc S() {}\n")

	store := setupTestStorage(t)
	idx := newTestIndexer(store, newMockEmbedder())
	ctx := context.Background()

	stats, err := idx.IndexProject(ctx, root, Config{Collection: "chunks", Mode: chunker.ModeChunks})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesScanned)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Zero(t, stats.FilesIgnored)
	assert.Greater(t, len(fileKeys(t, store, "chunks", "big.go")), 100)

	// Whole-file embeddings keep the smaller limit and report the skipped file
	stats, err = idx.IndexProject(ctx, root, Config{Collection: "files", Mode: chunker.ModeFiles})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesScanned)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesIgnored)
	assert.Empty(t, fileKeys(t, store, "files", "big.go"))
}

func TestIndexProject_RespectsGitIgnore(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	createTestFile(t, root, ".gitignore", "generated/\n")
	createTestFile(t, root, "a.go", "package a\n\nfunc A() {}\n")
	createTestFile(t, root, "generated/z.go", "package generated\n\nfunc Z() {}\n")

	store := setupTestStorage(t)
	emb := newMockEmbedder()
	stats, err := newTestIndexer(store, emb).IndexProject(context.Background(), root, Config{Collection: "chunks"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesScanned, "a.go and .gitignore")
	assert.NotEmpty(t, fileKeys(t, store, "chunks", "a.go"))
	assert.Empty(t, fileKeys(t, store, "chunks", "generated/z.go"))
}
