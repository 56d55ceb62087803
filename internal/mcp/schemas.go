package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/kaze/pkg/types"
)

func chunkTypeNames() []string {
	names := make([]string, len(types.ChunkTypes))
	for i, t := range types.ChunkTypes {
		names[i] = string(t)
	}
	return names
}

func collectionProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Collection name (\"chunks\" for code chunks, \"files\" for whole files)",
		"default":     "chunks",
	}
}

// indexProjectTool returns the tool definition for index_project
func indexProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_project",
		Description: "Embed the project's files or code chunks into a collection. Unchanged files are skipped.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root (defaults to the server's project)",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "files embeds whole files; chunks splits supported languages into code units",
					"enum":        []string{"files", "chunks"},
					"default":     "chunks",
				},
				"collection": map[string]interface{}{
					"type":        "string",
					"description": "Collection name (defaults to the mode name)",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "Re-embed files even when their content hash is unchanged",
					"default":     false,
				},
				"recreate": map[string]interface{}{
					"type":        "boolean",
					"description": "Drop and rebuild the collection (required to switch models)",
					"default":     false,
				},
			},
		},
	}
}

// searchChunksTool returns the tool definition for search_chunks
func searchChunksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_chunks",
		Description: "Find the stored chunks most similar to a natural language or code query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Query text",
				},
				"collection": collectionProperty(),
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity (0.0-1.0)",
					"default":     0.2,
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"types": map[string]interface{}{
					"type":        "array",
					"description": "Only return chunks of these types",
					"items": map[string]interface{}{
						"type": "string",
						"enum": chunkTypeNames(),
					},
				},
				"expand": map[string]interface{}{
					"type":        "string",
					"description": "Attach the direct children or the ancestor chain of each result",
					"enum":        []string{"none", "children", "ancestors"},
					"default":     "none",
				},
				"include_content": map[string]interface{}{
					"type":        "boolean",
					"description": "Include chunk source text in results",
					"default":     true,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getChunkTool returns the tool definition for get_chunk
func getChunkTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_chunk",
		Description: "Fetch one chunk by id, optionally with its children and ancestors",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Chunk id, e.g. src/app.py:class:Foo:0",
				},
				"collection": collectionProperty(),
				"include_children": map[string]interface{}{
					"type":    "boolean",
					"default": false,
				},
				"include_ancestors": map[string]interface{}{
					"type":    "boolean",
					"default": false,
				},
			},
			Required: []string{"id"},
		},
	}
}

// chunkStatsTool returns the tool definition for chunk_stats
func chunkStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "chunk_stats",
		Description: "Report chunk counts by type, the largest files, nesting depth and the last ingest run",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": collectionProperty(),
			},
		},
	}
}
