package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/kaze/internal/storage"
)

var versionInfo = VersionInfo{
	Version:   "dev",
	Commit:    "none",
	BuildTime: "unknown",
}

// VersionInfo contains build information
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	BuildMode string `json:"build_mode"`
	Driver    string `json:"sqlite_driver"`
}

// SetVersion sets the version information (called from main)
func SetVersion(version, commit, buildTime string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildTime = buildTime
}

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo
			info.BuildMode = storage.BuildMode
			info.Driver = storage.DriverName

			w := cmd.OutOrStdout()
			if !human {
				return printJSON(w, info)
			}
			fmt.Fprintf(w, "kaze %s\n", info.Version)
			fmt.Fprintf(w, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(w, "Built:      %s\n", info.BuildTime)
			fmt.Fprintf(w, "Build mode: %s (%s)\n", info.BuildMode, info.Driver)
			return nil
		},
	}
}
