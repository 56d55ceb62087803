package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/kaze/internal/chunker"
	"github.com/dshills/kaze/internal/indexer"
	"github.com/dshills/kaze/internal/searcher"
	"github.com/dshills/kaze/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Path is not a readable directory
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Collection or chunk not found
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeModelMismatch      = -32005 // Collection was built with another model or dimension
)

// handleIndexProject handles the index_project tool invocation
func (s *Server) handleIndexProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	root := getStringDefault(args, "path", s.opts.Root)
	if err := validatePath(root); err != nil {
		return nil, newMCPError(ErrorCodeProjectNotFound, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	mode, err := chunker.ParseMode(getStringDefault(args, "mode", string(chunker.ModeChunks)))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"allowed": []string{string(chunker.ModeFiles), string(chunker.ModeChunks)},
		})
	}

	cfg := indexer.Config{
		Collection:    getStringDefault(args, "collection", indexer.DefaultCollection(mode)),
		Mode:          mode,
		BatchSize:     s.opts.ChunkBatchSize,
		MaxFileSizeKB: s.opts.ChunkMaxSizeKB,
		Include:       s.opts.Include,
		Exclude:       s.opts.Exclude,
		Force:         getBoolDefault(args, "force", false),
		Recreate:      getBoolDefault(args, "recreate", false),
	}
	if mode == chunker.ModeFiles {
		cfg.BatchSize = s.opts.FileBatchSize
		cfg.MaxFileSizeKB = s.opts.MaxFileSizeKB
	}

	stats, err := s.indexer.IndexProject(ctx, root, cfg)
	if err != nil {
		return nil, toolError("indexing failed", err)
	}

	response := map[string]interface{}{
		"collection":     cfg.Collection,
		"run_id":         stats.RunID,
		"files_scanned":  stats.FilesScanned,
		"files_indexed":  stats.FilesIndexed,
		"files_skipped":  stats.FilesSkipped,
		"files_ignored":  stats.FilesIgnored,
		"files_failed":   stats.FilesFailed,
		"files_pruned":   stats.FilesPruned,
		"chunks_created": stats.ChunksCreated,
		"duration_ms":    stats.Duration.Milliseconds(),
		"complete":       stats.Err() == nil,
	}
	if n := len(stats.Failures); n > 0 {
		// Include first few failures
		if n > 5 {
			response["failures"] = stats.Failures[:5]
			response["failure_count"] = n
		} else {
			response["failures"] = stats.Failures
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchChunks handles the search_chunks tool invocation
func (s *Server) handleSearchChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", s.opts.Limit)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	chunkTypes, err := getChunkTypes(args, "types")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), map[string]interface{}{
			"param":   "types",
			"allowed": chunkTypeNames(),
		})
	}

	expand, err := types.ParseExpandMode(getStringDefault(args, "expand", string(types.ExpandNone)))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid expand", map[string]interface{}{
			"param":   "expand",
			"allowed": []string{"none", "children", "ancestors"},
		})
	}

	resp, err := s.searcher.Search(ctx, query, searcher.Request{
		Collection: getStringDefault(args, "collection", indexer.ChunksCollection),
		Limit:      limit,
		Threshold:  getFloatDefault(args, "threshold", s.opts.Threshold),
		Types:      chunkTypes,
		Expand:     expand,
	})
	if err != nil {
		return nil, toolError("search failed", err)
	}

	if !getBoolDefault(args, "include_content", true) {
		for i := range resp.Results {
			resp.Results[i].Chunk = withoutContent(resp.Results[i].Chunk)
		}
	}

	response := map[string]interface{}{
		"results":     resp.Results,
		"scanned":     resp.Scanned,
		"matched":     resp.Matched,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetChunk handles the get_chunk tool invocation
func (s *Server) handleGetChunk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}
	collection := getStringDefault(args, "collection", indexer.ChunksCollection)

	chunk, err := s.storage.GetChunk(ctx, collection, id)
	if err != nil {
		return nil, toolError("failed to get chunk", err)
	}

	response := map[string]interface{}{
		"chunk": chunk,
	}
	if getBoolDefault(args, "include_children", false) {
		children, err := s.storage.GetChildren(ctx, collection, id)
		if err != nil {
			return nil, toolError("failed to get children", err)
		}
		response["children"] = children
	}
	if getBoolDefault(args, "include_ancestors", false) {
		ancestors, err := s.storage.GetAncestors(ctx, collection, id)
		if err != nil {
			return nil, toolError("failed to get ancestors", err)
		}
		response["ancestors"] = ancestors
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleChunkStats handles the chunk_stats tool invocation
func (s *Server) handleChunkStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	stats, err := s.storage.Stats(ctx, getStringDefault(args, "collection", indexer.ChunksCollection))
	if err != nil {
		return nil, toolError("failed to get statistics", err)
	}

	response := map[string]interface{}{
		"statistics":       stats,
		"indexing_running": s.indexer.Running(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toolError maps domain errors onto MCP error codes
func toolError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, indexer.ErrIndexInProgress):
		code = ErrorCodeIndexingInProgress
	case errors.Is(err, types.ErrNotFound):
		code = ErrorCodeNotIndexed
	case errors.Is(err, types.ErrSchemaMismatch), errors.Is(err, types.ErrDimensionMismatch):
		code = ErrorCodeModelMismatch
	case errors.Is(err, types.ErrInvalidRequest):
		code = ErrorCodeInvalidParams
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// validatePath checks that path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

func withoutContent(c *types.Chunk) *types.Chunk {
	cp := *c
	cp.Content = ""
	return &cp
}

// formatJSON formats a response as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	if val, ok := args[key].(int); ok {
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a non-empty string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

// getChunkTypes extracts an optional array of chunk type names
func getChunkTypes(args map[string]interface{}, key string) ([]types.ChunkType, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}

	var names []string
	switch v := raw.(type) {
	case []string:
		names = v
	case []interface{}:
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be an array of strings", key)
			}
			names = append(names, name)
		}
	default:
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}

	out := make([]types.ChunkType, 0, len(names))
	for _, name := range names {
		t, err := types.ParseChunkType(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
