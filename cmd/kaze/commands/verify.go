package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVerifyCmd creates the verify command
func NewVerifyCmd() *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that the embedding provider is reachable",
		Long: `Send a probe request to the configured embedding provider and report
its model and vector dimension.

Examples:
  kaze verify
  KAZE_EMBEDDING_PROVIDER=ollama kaze verify --model nomic-embed-text`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := loadWorkspace()
			if err != nil {
				return err
			}
			emb, err := ws.newEmbedder(model)
			if err != nil {
				return err
			}
			defer func() { _ = emb.Close() }()

			if err := emb.Verify(ctx); err != nil {
				return err
			}
			dim, err := emb.Dimension(ctx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if !human {
				return printJSON(w, map[string]any{
					"ok":        true,
					"provider":  emb.Provider(),
					"model":     emb.Model(),
					"dimension": dim,
				})
			}
			fmt.Fprintf(w, "%s %s/%s, %d dimensions\n", scoreColor.Sprint("ok"), emb.Provider(), emb.Model(), dim)
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Embedding model to check")
	return cmd
}
