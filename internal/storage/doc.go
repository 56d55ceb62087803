// Package storage provides SQLite-based persistence for chunk embeddings.
//
// The storage layer manages:
//   - Collections (one embedding model and dimension each)
//   - File fingerprints used for change detection
//   - Chunks with their content, hierarchy links and vectors
//   - Ingestion runs and per-file failures
//
// # Database Schema
//
// Tables:
//   - collections: name, model, dimension
//   - files: per-file content hash, size, mod time, chunk count
//   - chunks: keyed chunks with parent_key links and float32 vector blobs
//   - ingest_runs / ingest_failures: outcome of each ingestion
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(".kaze/embeddings.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	coll, err := store.EnsureCollection(ctx, "chunks", "text-embedding-3-small", 1536, false)
//
//	// Replace everything stored for a file in one transaction
//	err = store.UpsertFileChunks(ctx, "chunks", fingerprint, chunks)
//
//	for chunk, err := range store.IterChunks(ctx, "chunks", storage.ChunkFilter{WithVectors: true}) {
//	    ...
//	}
//
// # Concurrency
//
// File databases run in WAL mode, so readers never block the single writer.
// Writes take the lock up front (BEGIN IMMEDIATE) and are retried with
// exponential backoff while SQLite reports SQLITE_BUSY or SQLITE_LOCKED.
// When retries run out the operation fails with types.ErrStoreUnavailable.
//
// In-memory databases use a single connection; do not call back into the
// store while ranging over IterChunks on one.
//
// # Build Tags
//
// Pure Go build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build ./...
//
// CGO build (cgo_sqlite tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "cgo_sqlite" ./...
package storage
