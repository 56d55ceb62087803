package commands

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Global flags
var (
	projectDir string
	outputDir  string
	configFile string
	verbose    bool
	quiet      bool
	human      bool
)

// NewRootCmd creates the root command with every subcommand attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kaze",
		Short: "Chunk-aware semantic index for source trees",
		Long: `kaze embeds the files of a project, or the classes, functions and
methods inside them, into a local SQLite store and ranks them against
natural language or code queries by cosine similarity.

Examples:
  kaze create --dir ./myproject
  kaze query -Q "open the database" --human
  kaze chunks create && kaze chunks query -Q "retry with backoff" --expand ancestors
  kaze chunks list --tree --file internal/storage/sqlite.go`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose && quiet {
				return errors.New("--verbose and --quiet are mutually exclusive")
			}
			setupLogging(cmd.ErrOrStderr())
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&projectDir, "dir", "d", ".", "Project directory")
	flags.StringVarP(&outputDir, "output", "o", "", "Output directory for the store (default <dir>/.kaze)")
	flags.StringVar(&configFile, "config", "", "Config file (default <output>/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	flags.BoolVar(&human, "human", false, "Human-readable output instead of JSON")

	cmd.AddCommand(
		NewCreateCmd(),
		NewQueryCmd(),
		NewChunksCmd(),
		NewInfoCmd(),
		NewVerifyCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command. Interrupts cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// setupLogging points the global logger at w with the level chosen by flags
func setupLogging(w io.Writer) {
	level := zerolog.InfoLevel
	switch {
	case verbose:
		level = zerolog.DebugLevel
	case quiet:
		level = zerolog.ErrorLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
}
