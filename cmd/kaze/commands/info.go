package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/kaze/internal/storage"
	"github.com/dshills/kaze/pkg/types"
)

type collectionOutput struct {
	*storage.CollectionInfo
	LastRun *types.IngestRun `json:"last_run,omitempty"`
}

type infoOutput struct {
	Project     string             `json:"project"`
	Output      string             `json:"output"`
	Database    string             `json:"database"`
	Exists      bool               `json:"exists"`
	SizeBytes   int64              `json:"size_bytes,omitempty"`
	Size        string             `json:"size,omitempty"`
	Driver      string             `json:"driver"`
	Collections []collectionOutput `json:"collections"`
}

// NewInfoCmd creates the info command
func NewInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the store location, size and collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := loadWorkspace()
			if err != nil {
				return err
			}

			out := infoOutput{
				Project:     ws.root,
				Output:      ws.output,
				Database:    ws.dbPath(),
				Driver:      fmt.Sprintf("%s (%s)", storage.DriverName, storage.BuildMode),
				Collections: []collectionOutput{},
			}

			store, err := ws.openStore(ctx, false)
			switch {
			case isNotFound(err):
				return printInfo(cmd, out)
			case err != nil:
				return err
			}
			defer func() { _ = store.Close() }()
			out.Exists = true

			if out.SizeBytes, err = store.SizeBytes(ctx); err != nil {
				return err
			}
			out.Size = humanize.Bytes(uint64(out.SizeBytes))

			infos, err := store.ListCollections(ctx)
			if err != nil {
				return err
			}
			for _, info := range infos {
				co := collectionOutput{CollectionInfo: info}
				run, err := store.LastRun(ctx, info.Name)
				switch {
				case err == nil:
					co.LastRun = run
				case !isNotFound(err):
					return err
				}
				out.Collections = append(out.Collections, co)
			}
			return printInfo(cmd, out)
		},
	}
}

func printInfo(cmd *cobra.Command, out infoOutput) error {
	w := cmd.OutOrStdout()
	if !human {
		return printJSON(w, out)
	}

	headerColor.Fprintln(w, "kaze index")
	fmt.Fprintf(w, "  project   %s\n", out.Project)
	fmt.Fprintf(w, "  database  %s\n", out.Database)
	if !out.Exists {
		warnColor.Fprintln(w, "  no index yet; run kaze create or kaze chunks create")
		return nil
	}
	fmt.Fprintf(w, "  size      %s\n", out.Size)
	fmt.Fprintf(w, "  driver    %s\n", out.Driver)

	headerColor.Fprintln(w, "Collections")
	for _, c := range out.Collections {
		fmt.Fprintf(w, "  %s  %s  %d files, %d chunks\n",
			nameColor.Sprint(c.Name), dimColor.Sprintf("%s/%d", c.Model, c.Dimension), c.Files, c.Chunks)
		if c.LastRun != nil {
			fmt.Fprintf(w, "    last run %s\n", humanize.Time(c.LastRun.StartedAt))
		}
	}
	return nil
}
