package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mindweaver/ragchunk/internal/chunk"
)

// searchChunksTool returns the tool definition for search_chunks
func searchChunksTool() mcp.Tool {
	types := make([]string, 0, len(chunk.ValidChunkTypes))
	for _, t := range chunk.ValidChunkTypes {
		types = append(types, string(t))
	}

	return mcp.Tool{
		Name:        "search_chunks",
		Description: "Full-text search over indexed Kotlin code chunks",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Keywords to search for in chunk content, names and signatures",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"types": map[string]interface{}{
					"type":        "array",
					"description": "Only return chunks of these types",
					"items": map[string]interface{}{
						"type": "string",
						"enum": types,
					},
				},
				"path_prefix": map[string]interface{}{
					"type":        "string",
					"description": "Only return chunks from files below this repository-relative path",
				},
				"include_content": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include the full chunk content in each result",
					"default":     false,
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
		Description: "Fetch a single chunk with its content and context by ID",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Chunk ID as returned by search_chunks",
				},
			},
			Required: []string{"id"},
		},
	}
}

// indexStatusTool returns the tool definition for index_status
func indexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_status",
		Description: "Report how many files and chunks are indexed",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// indexRepositoryTool returns the tool definition for index_repository
func indexRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_repository",
		Description: "Scan a directory and add its Kotlin chunks to the index",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Directory to scan, absolute or relative to the project root. Defaults to the project root",
				},
			},
		},
	}
}
