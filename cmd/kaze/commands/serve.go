package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/kaze/internal/chunker"
	"github.com/dshills/kaze/internal/indexer"
	"github.com/dshills/kaze/internal/mcp"
	"github.com/dshills/kaze/internal/searcher"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an MCP server on stdio",
		Long: `Serve the index to MCP clients over stdio. The server exposes the
index_project, search_chunks, get_chunk and chunk_stats tools. Logs go to
stderr; stdout carries the protocol.

Examples:
  kaze serve --dir /path/to/project`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := loadWorkspace()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(ws.output, 0o755); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
			store, err := ws.openStore(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			// Shared by indexer and searcher
			emb, err := ws.newEmbedder(model)
			if err != nil {
				return err
			}
			defer func() { _ = emb.Close() }()

			server, err := mcp.NewServer(store, indexer.New(store, emb, nil), searcher.New(store, emb), mcp.Options{
				Root:           ws.root,
				Limit:          ws.cfg.Query.Limit,
				Threshold:      ws.cfg.Query.Threshold,
				MaxFileSizeKB:  ws.cfg.Index.MaxFileSizeFor(chunker.ModeFiles),
				ChunkMaxSizeKB: ws.cfg.Index.MaxFileSizeFor(chunker.ModeChunks),
				ChunkBatchSize: ws.cfg.Index.ChunkBatchSize,
				FileBatchSize:  ws.cfg.Index.FileBatchSize,
				Include:        ws.cfg.Index.Include,
				Exclude:        ws.cfg.Index.Exclude,
			})
			if err != nil {
				return err
			}
			return server.Serve(ctx)
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Embedding model")
	return cmd
}
