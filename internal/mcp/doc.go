// Package mcp implements the Model Context Protocol (MCP) server for kaze.
//
// The server exposes four tools over stdio:
//   - index_project: embed the project's files or code chunks
//   - search_chunks: rank stored chunks against a query
//   - get_chunk: fetch one chunk with its children or ancestors
//   - chunk_stats: report collection statistics and the last ingest run
//
// It is started with:
//
//	kaze serve --dir /path/to/project
//
// Stdout carries the protocol; logs go to stderr.
//
// # Tool: search_chunks
//
//	Request:
//	{
//	  "name": "search_chunks",
//	  "arguments": {
//	    "query": "parse configuration file",
//	    "collection": "chunks",
//	    "limit": 5,
//	    "threshold": 0.3,
//	    "types": ["function", "method"],
//	    "expand": "ancestors"
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "rank": 1,
//	      "score": 0.82,
//	      "chunk": {"id": "internal/config/config.go:function:Load:78", ...},
//	      "ancestors": []
//	    }
//	  ],
//	  "scanned": 412,
//	  "matched": 9,
//	  "duration_ms": 3
//	}
//
// # Errors
//
// Handler errors carry JSON-RPC style codes:
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32001  project path is not a readable directory
//	-32002  an indexing run is already in progress
//	-32003  collection or chunk not found
//	-32004  empty query
//	-32005  collection built with a different model or dimension
package mcp
