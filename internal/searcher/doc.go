// Package searcher ranks stored chunks by cosine similarity to a query.
//
// Query is a brute-force scan: every chunk of the collection that passes the
// type and model filters is scored, entries below the threshold are dropped,
// and the rest are sorted by score (descending) with the chunk key breaking
// ties so results are deterministic. Expansion attaches children or the
// ancestor chain to each result after ranking; it never changes rank or
// count.
//
// # Basic Usage
//
//	s := searcher.New(store, adapter)
//
//	resp, err := s.Search(ctx, "where is the config loaded", searcher.Request{
//	    Collection: "chunks",
//	    Limit:      10,
//	    Threshold:  0.2,
//	    Types:      []types.ChunkType{types.ChunkFunction, types.ChunkMethod},
//	    Expand:     types.ExpandAncestors,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("%d. %s (%.3f)\n", r.Rank, r.Chunk.Key, r.Score)
//	}
//
// Search embeds the query text with the collection's model and refuses to
// mix models (types.ErrSchemaMismatch). Query takes a vector directly.
//
// # Scores
//
// Scores lie in [-1, 1]. A zero vector on either side scores 0 rather than
// failing. A query whose length differs from the collection dimension fails
// with types.ErrDimensionMismatch.
package searcher
