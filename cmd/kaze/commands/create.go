package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/kaze/internal/chunker"
	"github.com/dshills/kaze/internal/indexer"
)

// indexOptions holds the flags shared by create and chunks create
type indexOptions struct {
	model      string
	sizeKB     int
	batch      int
	collection string
	force      bool
	recreate   bool
	include    []string
	exclude    []string
	sequential bool
	workers    int
}

// NewCreateCmd creates the create command (whole-file embeddings)
func NewCreateCmd() *cobra.Command {
	cmd := newIndexCmd(chunker.ModeFiles)
	cmd.Use = "create"
	cmd.Short = "Embed every file of the project"
	cmd.Long = `Embed every text file of the project as one vector in the "files"
collection. Files whose content hash is unchanged since the last run are
skipped; files that no longer exist are pruned.

Examples:
  kaze create
  kaze create --dir ./myproject --exclude "*.min.js" --size 16
  kaze create --model text-embedding-3-large --recreate`
	return cmd
}

func newIndexCmd(mode chunker.Mode) *cobra.Command {
	opts := &indexOptions{}
	cmd := &cobra.Command{
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, mode, opts)
		},
	}

	defaultBatch := indexer.DefaultChunkBatchSize
	if mode == chunker.ModeFiles {
		defaultBatch = indexer.DefaultFileBatchSize
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.model, "model", "m", "", "Embedding model (default depends on provider)")
	flags.IntVarP(&opts.sizeKB, "size", "s", indexer.DefaultMaxFileSize(mode), "Skip files larger than this many KB")
	flags.IntVarP(&opts.batch, "batch", "b", defaultBatch, "Texts per embedding request")
	flags.StringVarP(&opts.collection, "collection", "c", indexer.DefaultCollection(mode), "Collection name")
	flags.BoolVarP(&opts.force, "force", "f", false, "Re-embed unchanged files")
	flags.BoolVar(&opts.recreate, "recreate", false, "Drop and rebuild the collection")
	flags.StringSliceVar(&opts.include, "include", nil, "Only index files matching these globs")
	flags.StringSliceVar(&opts.exclude, "exclude", nil, "Skip files and directories matching these globs")
	flags.BoolVar(&opts.sequential, "sequential", false, "Store each file before starting the next")
	flags.IntVar(&opts.workers, "workers", 0, "Concurrent workers (default CPU count)")
	return cmd
}

func runIndex(cmd *cobra.Command, mode chunker.Mode, opts *indexOptions) error {
	ctx := cmd.Context()

	ws, err := loadWorkspace()
	if err != nil {
		return err
	}

	// Flags win over config only when given explicitly
	flags := cmd.Flags()
	cfg := indexer.Config{
		Collection:    opts.collection,
		Mode:          mode,
		BatchSize:     opts.batch,
		Workers:       opts.workers,
		MaxFileSizeKB: opts.sizeKB,
		Include:       opts.include,
		Exclude:       opts.exclude,
		Force:         opts.force,
		Recreate:      opts.recreate,
		Sequential:    opts.sequential || ws.cfg.Index.Sequential,
	}
	if !flags.Changed("batch") {
		cfg.BatchSize = ws.cfg.Index.ChunkBatchSize
		if mode == chunker.ModeFiles {
			cfg.BatchSize = ws.cfg.Index.FileBatchSize
		}
	}
	if !flags.Changed("size") {
		cfg.MaxFileSizeKB = ws.cfg.Index.MaxFileSizeFor(mode)
	}
	if !flags.Changed("workers") {
		cfg.Workers = ws.cfg.Index.Workers
	}
	if !flags.Changed("include") {
		cfg.Include = ws.cfg.Index.Include
	}
	if !flags.Changed("exclude") {
		cfg.Exclude = ws.cfg.Index.Exclude
	}

	if err := os.MkdirAll(ws.output, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	store, err := ws.openStore(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	emb, err := ws.newEmbedder(opts.model)
	if err != nil {
		return err
	}
	defer func() { _ = emb.Close() }()

	stats, err := indexer.New(store, emb, nil).IndexProject(ctx, ws.root, cfg)
	if stats != nil {
		if perr := printIndexStats(cmd.OutOrStdout(), cfg.Collection, stats); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	return stats.Err()
}

func printIndexStats(w io.Writer, collection string, stats *indexer.Statistics) error {
	if !human {
		return printJSON(w, struct {
			Collection string `json:"collection"`
			*indexer.Statistics
		}{collection, stats})
	}

	headerColor.Fprintf(w, "Collection %s\n", collection)
	fmt.Fprintf(w, "  scanned  %d\n", stats.FilesScanned)
	fmt.Fprintf(w, "  indexed  %s\n", scoreColor.Sprint(stats.FilesIndexed))
	fmt.Fprintf(w, "  skipped  %d\n", stats.FilesSkipped)
	fmt.Fprintf(w, "  ignored  %d\n", stats.FilesIgnored)
	fmt.Fprintf(w, "  pruned   %d\n", stats.FilesPruned)
	fmt.Fprintf(w, "  chunks   %d\n", stats.ChunksCreated)
	fmt.Fprintf(w, "  took     %s\n", stats.Duration.Round(time.Millisecond))
	if stats.FilesFailed > 0 {
		warnColor.Fprintf(w, "  failed   %d\n", stats.FilesFailed)
		for _, f := range stats.Failures {
			fmt.Fprintf(w, "    %s [%s] %s\n", f.FilePath, f.Kind, truncate(f.Message, 100))
		}
	}
	return nil
}
