package commands

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/kaze/internal/chunker"
	"github.com/dshills/kaze/internal/indexer"
	"github.com/dshills/kaze/internal/storage"
	"github.com/dshills/kaze/pkg/types"
)

// NewChunksCmd creates the chunks command group
func NewChunksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunks",
		Short: "Work with code chunks (classes, functions, methods)",
		Long: `Split source files into classes, functions and methods, embed each
chunk, and query or browse the chunk hierarchy.

Examples:
  kaze chunks create
  kaze chunks query -Q "retry with backoff" --type function,method --expand ancestors
  kaze chunks list --tree --file src/app.py
  kaze chunks show --id src/app.py:class:Foo:0 --show-children
  kaze chunks stats`,
	}

	create := newIndexCmd(chunker.ModeChunks)
	create.Use = "create"
	create.Short = "Extract and embed code chunks"
	create.Long = `Extract classes, functions and methods from supported languages (Go,
Python, Java, JavaScript, TypeScript) and embed each one. Other text files
are embedded whole.`

	query := newSearchCmd(chunker.ModeChunks)
	query.Use = "query"
	query.Short = "Find the chunks most similar to a query"

	cmd.AddCommand(create, query, newChunksListCmd(), newChunksShowCmd(), newChunksStatsCmd())
	return cmd
}

func newChunksListCmd() *cobra.Command {
	var (
		collection string
		file       string
		chunkTypes []string
		tree       bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			filter := storage.ChunkFilter{FilePath: file}
			for _, name := range chunkTypes {
				t, err := types.ParseChunkType(name)
				if err != nil {
					return err
				}
				filter.Types = append(filter.Types, t)
			}

			store, err := openExistingStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if _, err := store.GetCollection(ctx, collection); err != nil {
				return err
			}
			var chunks []*types.Chunk
			for c, err := range store.IterChunks(ctx, collection, filter) {
				if err != nil {
					return err
				}
				chunks = append(chunks, c)
			}

			w := cmd.OutOrStdout()
			switch {
			case !human:
				if chunks == nil {
					chunks = []*types.Chunk{}
				}
				return printJSON(w, chunks)
			case tree:
				renderTree(w, fmt.Sprintf("%s (%d chunks)", collection, len(chunks)), chunks)
			default:
				printChunkTable(w, chunks)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&collection, "collection", "c", indexer.ChunksCollection, "Collection name")
	flags.StringVar(&file, "file", "", "Only chunks of this file (relative path)")
	flags.StringSliceVar(&chunkTypes, "type", nil, "Only these chunk types")
	flags.BoolVar(&tree, "tree", false, "Render the parent/child hierarchy (with --human)")
	return cmd
}

func printChunkTable(w io.Writer, chunks []*types.Chunk) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tNAME\tFILE\tLINES\tPARENT\n")
	for _, c := range chunks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d-%d\t%s\n",
			c.Type, truncate(c.Name, 40), truncate(c.FilePath, 50), c.StartLine, c.EndLine, c.Parent())
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d chunk(s)\n", len(chunks))
}

func newChunksShowCmd() *cobra.Command {
	var (
		collection    string
		id            string
		showChildren  bool
		showAncestors bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one chunk with its children or ancestors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openExistingStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			out := struct {
				Chunk     *types.Chunk   `json:"chunk"`
				Children  []*types.Chunk `json:"children,omitempty"`
				Ancestors []*types.Chunk `json:"ancestors,omitempty"`
			}{}
			if out.Chunk, err = store.GetChunk(ctx, collection, id); err != nil {
				return err
			}
			if showChildren {
				if out.Children, err = store.GetChildren(ctx, collection, id); err != nil {
					return err
				}
			}
			if showAncestors {
				if out.Ancestors, err = store.GetAncestors(ctx, collection, id); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if !human {
				return printJSON(w, out)
			}

			c := out.Chunk
			headerColor.Fprintln(w, c.Key)
			fmt.Fprintf(w, "%s  %s\n", chunkLabel(c), c.FilePath)
			printNumbered(w, c.Content, c.StartLine)
			if showAncestors {
				headerColor.Fprintf(w, "Ancestors (%d)\n", len(out.Ancestors))
				for _, a := range out.Ancestors {
					fmt.Fprintf(w, "  ↑ %s\n", chunkLabel(a))
				}
			}
			if showChildren {
				headerColor.Fprintf(w, "Children (%d)\n", len(out.Children))
				for _, ch := range out.Children {
					fmt.Fprintf(w, "  ↓ %s\n", chunkLabel(ch))
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&collection, "collection", "c", indexer.ChunksCollection, "Collection name")
	flags.StringVar(&id, "id", "", "Chunk id, e.g. src/app.py:class:Foo:0 (required)")
	flags.BoolVar(&showChildren, "show-children", false, "Include direct children")
	flags.BoolVar(&showAncestors, "show-ancestors", false, "Include the ancestor chain, nearest first")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newChunksStatsCmd() *cobra.Command {
	var collection string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize a collection: types, largest files, nesting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openExistingStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := store.Stats(cmd.Context(), collection)
			if err != nil {
				return err
			}
			if !human {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().StringVarP(&collection, "collection", "c", indexer.ChunksCollection, "Collection name")
	return cmd
}

func printStats(w io.Writer, stats *storage.CollectionStats) {
	headerColor.Fprintf(w, "Collection %s\n", stats.Collection.Name)
	fmt.Fprintf(w, "  model   %s (%d dims)\n", stats.Collection.Model, stats.Collection.Dimension)
	fmt.Fprintf(w, "  files   %d\n", stats.TotalFiles)
	fmt.Fprintf(w, "  chunks  %d (%d top-level, %d nested)\n", stats.TotalChunks, stats.TopLevel, stats.Nested)

	headerColor.Fprintln(w, "By type")
	byType := slices.SortedFunc(maps.Keys(stats.ByType), func(a, b types.ChunkType) int {
		if c := cmp.Compare(stats.ByType[b], stats.ByType[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	for _, t := range byType {
		fmt.Fprintf(w, "  %-16s %d\n", typeColor.Sprint(t), stats.ByType[t])
	}

	headerColor.Fprintln(w, "Nesting depth")
	for _, d := range slices.Sorted(maps.Keys(stats.DepthCounts)) {
		fmt.Fprintf(w, "  %d  %d\n", d, stats.DepthCounts[d])
	}

	headerColor.Fprintln(w, "Top files")
	for _, f := range stats.TopFiles {
		fmt.Fprintf(w, "  %5d  %s\n", f.Chunks, f.FilePath)
	}

	if run := stats.LastRun; run != nil {
		headerColor.Fprintln(w, "Last run")
		fmt.Fprintf(w, "  %s  processed %d, skipped %d, failed %d, pruned %d\n",
			run.StartedAt.Format("2006-01-02 15:04:05"), run.Processed, run.Skipped, run.Failed, run.Pruned)
	}
}

// openExistingStore opens the store for read-only commands
func openExistingStore(cmd *cobra.Command) (*storage.SQLiteStorage, error) {
	ws, err := loadWorkspace()
	if err != nil {
		return nil, err
	}
	return ws.openStore(cmd.Context(), false)
}
