package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/kaze/internal/chunker"
	"github.com/dshills/kaze/internal/indexer"
	"github.com/dshills/kaze/internal/searcher"
	"github.com/dshills/kaze/pkg/types"
)

// queryOptions holds the flags shared by query and chunks query
type queryOptions struct {
	query       string
	limit       int
	threshold   float64
	collection  string
	model       string
	showContent bool
	best        bool
	context     int
	chunkTypes  []string
	expand      string
}

// resultOutput is one ranked result as printed
type resultOutput struct {
	types.QueryResult
	Context          string `json:"context,omitempty"`
	ContextStartLine int    `json:"context_start_line,omitempty"`
}

type queryOutput struct {
	Query      string         `json:"query"`
	Collection string         `json:"collection"`
	Model      string         `json:"model"`
	Scanned    int            `json:"scanned"`
	Matched    int            `json:"matched"`
	Results    []resultOutput `json:"results"`
}

// NewQueryCmd creates the query command (whole-file search)
func NewQueryCmd() *cobra.Command {
	cmd := newSearchCmd(chunker.ModeFiles)
	cmd.Use = "query"
	cmd.Short = "Find the files most similar to a query"
	cmd.Long = `Rank the embedded files against a query by cosine similarity.

Examples:
  kaze query -Q "database migrations"
  kaze query -Q "parse yaml config" -n 3 -t 0.3 --human
  kaze query -Q "http retry" --best --context 5`
	return cmd
}

func newSearchCmd(mode chunker.Mode) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.query, "query", "Q", "", "Query text (required)")
	flags.IntVarP(&opts.limit, "limit", "n", searcher.DefaultLimit, "Maximum results")
	flags.Float64VarP(&opts.threshold, "threshold", "t", searcher.DefaultThreshold, "Minimum similarity score (0-1)")
	flags.StringVarP(&opts.collection, "collection", "c", indexer.DefaultCollection(mode), "Collection name")
	flags.StringVarP(&opts.model, "model", "m", "", "Embedding model (default: the collection's model)")
	flags.BoolVar(&opts.showContent, "show-content", false, "Include chunk content")
	flags.BoolVar(&opts.best, "best", false, "Only the best match")
	flags.IntVar(&opts.context, "context", 0, "Show N lines around the middle of each match")
	flags.StringSliceVar(&opts.chunkTypes, "type", nil, "Only these chunk types (e.g. class,method)")
	flags.StringVar(&opts.expand, "expand", "none", "Attach children or ancestors (none, children, ancestors)")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func runQuery(cmd *cobra.Command, opts *queryOptions) error {
	ctx := cmd.Context()

	ws, err := loadWorkspace()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if !flags.Changed("limit") {
		opts.limit = ws.cfg.Query.Limit
	}
	if !flags.Changed("threshold") {
		opts.threshold = ws.cfg.Query.Threshold
	}
	if opts.context < 0 {
		return fmt.Errorf("%w: --context cannot be negative", types.ErrInvalidRequest)
	}

	chunkTypes := make([]types.ChunkType, 0, len(opts.chunkTypes))
	for _, name := range opts.chunkTypes {
		t, err := types.ParseChunkType(name)
		if err != nil {
			return err
		}
		chunkTypes = append(chunkTypes, t)
	}
	expand, err := types.ParseExpandMode(opts.expand)
	if err != nil {
		return err
	}

	store, err := ws.openStore(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	coll, err := store.GetCollection(ctx, opts.collection)
	if err != nil {
		return err
	}
	emb, err := ws.queryEmbedder(coll, opts.model)
	if err != nil {
		return err
	}
	defer func() { _ = emb.Close() }()

	req := searcher.Request{
		Collection: opts.collection,
		Limit:      opts.limit,
		Threshold:  opts.threshold,
		Types:      chunkTypes,
		Expand:     expand,
	}
	if opts.best {
		req.Limit = 1
	}

	resp, err := searcher.New(store, emb).Search(ctx, opts.query, req)
	if err != nil {
		return err
	}
	if opts.best && len(resp.Results) == 0 {
		return fmt.Errorf("%w: no match at or above %.2f", types.ErrNotFound, opts.threshold)
	}

	out := queryOutput{
		Query:      opts.query,
		Collection: coll.Name,
		Model:      coll.Model,
		Scanned:    resp.Scanned,
		Matched:    resp.Matched,
		Results:    make([]resultOutput, len(resp.Results)),
	}
	for i, r := range resp.Results {
		ro := resultOutput{QueryResult: r}
		if opts.context > 0 {
			ro.Context, ro.ContextStartLine = searcher.ContextLines(r.Chunk, opts.context)
		}
		if !opts.showContent {
			ro.Chunk = withoutContent(r.Chunk)
		}
		out.Results[i] = ro
	}

	return printQueryResults(cmd.OutOrStdout(), out, opts)
}

func withoutContent(c *types.Chunk) *types.Chunk {
	cp := *c
	cp.Content = ""
	return &cp
}

func printQueryResults(w io.Writer, out queryOutput, opts *queryOptions) error {
	if !human {
		return printJSON(w, out)
	}

	if len(out.Results) == 0 {
		fmt.Fprintf(w, "No results at or above %.2f for %q\n", opts.threshold, out.Query)
		return nil
	}

	for _, r := range out.Results {
		c := r.Chunk
		fmt.Fprintf(w, "%s %s %s %s\n",
			dimColor.Sprintf("#%d", r.Rank),
			scoreColor.Sprintf("%.3f", r.Score),
			chunkLabel(c),
			c.FilePath)
		switch {
		case r.Context != "":
			printNumbered(w, r.Context, r.ContextStartLine)
		case opts.showContent:
			printNumbered(w, c.Content, c.StartLine)
		}
		for _, a := range r.Ancestors {
			fmt.Fprintf(w, "    ↑ %s\n", chunkLabel(a))
		}
		for _, ch := range r.Children {
			fmt.Fprintf(w, "    ↓ %s\n", chunkLabel(ch))
		}
	}
	fmt.Fprintf(w, "\n%d of %d matched, %d scanned\n", len(out.Results), out.Matched, out.Scanned)
	return nil
}

// isNotFound reports whether err means the store or collection is missing
func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}
