// Package indexer runs the ingestion pipeline: discover files under a root,
// skip those whose content hash matches the stored fingerprint, extract
// chunks, embed them in batches and store each file's chunk set atomically.
//
// # Basic Usage
//
//	idx := indexer.New(store, adapter, nil)
//
//	stats, err := idx.IndexProject(ctx, "/path/to/project", indexer.Config{
//	    Collection: "chunks",
//	    Mode:       chunker.ModeChunks,
//	})
//	if err != nil {
//	    return err // fatal: verify failed, schema mismatch, store unavailable
//	}
//	if err := stats.Err(); err != nil {
//	    // some files failed; stats.Failures says which and why
//	}
//
// # Processing Modes
//
// Sequential mode parses, embeds and stores one file before starting the
// next. Concurrent mode (the default) extracts files in parallel, packs their
// texts into cross-file batches and embeds those with a bounded worker pool;
// a file is stored as soon as its last batch completes.
//
// # Failure Handling
//
// The provider is verified before any embedding work. A verify failure is
// fatal. After that, failures are scoped: a batch that fails after the
// adapter's retries fails every file it touches, an item with a bad vector
// fails its file, and parse errors never fail a file at all (the extractor
// falls back to a whole-file chunk). Failed files keep their previous
// fingerprint and chunks, so the next run picks them up again. Each failure
// is recorded against the run in the store.
//
// A run over an unchanged tree makes no embedding calls and writes no chunks.
// Files that disappeared from disk are pruned; files merely filtered out by
// include/exclude patterns or the size limit are kept.
//
// Only one run may be active per Indexer (ErrIndexInProgress). Runs from
// separate processes serialize on the store's busy retry.
package indexer
