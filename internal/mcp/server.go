package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/dshills/kaze/internal/indexer"
	"github.com/dshills/kaze/internal/searcher"
	"github.com/dshills/kaze/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "kaze"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Options carries the defaults applied when a tool call omits a parameter
type Options struct {
	Root           string // Project root indexed by index_project when no path is given
	Limit          int
	Threshold      float64 // Used as given; zero admits every non-negative score
	MaxFileSizeKB  int // files mode; 0 uses the indexer default
	ChunkMaxSizeKB int // chunks mode; 0 uses the indexer default
	ChunkBatchSize int
	FileBatchSize  int
	Include        []string
	Exclude        []string
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	opts     Options
}

// NewServer creates a new MCP server around an open store. The indexer and
// searcher should share one embedding adapter so they share its cache.
func NewServer(store storage.Storage, idx *indexer.Indexer, srch *searcher.Searcher, opts Options) (*Server, error) {
	if store == nil || idx == nil || srch == nil {
		return nil, errors.New("mcp: storage, indexer and searcher are required")
	}
	if opts.Root == "" {
		return nil, errors.New("mcp: project root is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = searcher.DefaultLimit
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		storage:  store,
		indexer:  idx,
		searcher: srch,
		opts:     opts,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Serve runs the MCP server on stdio until the client disconnects.
// The caller owns the store and closes it afterwards.
func (s *Server) Serve(ctx context.Context) error {
	log.Info().Str("root", s.opts.Root).Str("db", s.storage.Path()).Msg("MCP server listening on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() error {
	s.mcp.AddTool(indexProjectTool(), s.handleIndexProject)
	s.mcp.AddTool(searchChunksTool(), s.handleSearchChunks)
	s.mcp.AddTool(getChunkTool(), s.handleGetChunk)
	s.mcp.AddTool(chunkStatsTool(), s.handleChunkStats)
	return nil
}
