package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dshills/kaze/internal/config"
	"github.com/dshills/kaze/internal/embedder"
	"github.com/dshills/kaze/internal/storage"
	"github.com/dshills/kaze/pkg/types"
)

const (
	// DefaultOutputDir is created inside the project directory
	DefaultOutputDir = ".kaze"
	// DBFileName is the store inside the output directory
	DBFileName = "embeddings.db"
)

// workspace resolves the project, output and config locations shared by all commands
type workspace struct {
	root   string // Absolute project directory
	output string // Absolute output directory
	cfg    *config.Config
}

func loadWorkspace() (*workspace, error) {
	root, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolving project directory: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("project directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project directory %s is not a directory", root)
	}

	output := outputDir
	if output == "" {
		output = filepath.Join(root, DefaultOutputDir)
	}
	if output, err = filepath.Abs(output); err != nil {
		return nil, fmt.Errorf("resolving output directory: %w", err)
	}

	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: configFile,
		OutputDir:  output,
		ProjectDir: root,
	})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &workspace{root: root, output: output, cfg: cfg}, nil
}

func (w *workspace) dbPath() string {
	return filepath.Join(w.output, DBFileName)
}

// openStore opens the store, creating it when create is set. Read-only
// commands get ErrNotFound instead of an empty database.
func (w *workspace) openStore(ctx context.Context, create bool) (*storage.SQLiteStorage, error) {
	path := w.dbPath()
	if !create {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no index at %s (run kaze create first)", types.ErrNotFound, path)
		}
	}
	store, err := storage.Open(ctx, path, w.cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	log.Debug().Str("db", path).Str("driver", storage.DriverName).Msg("store opened")
	return store, nil
}

// newEmbedder builds the adapter; model overrides the configured model when set
func (w *workspace) newEmbedder(model string) (*embedder.Adapter, error) {
	ec := w.cfg.EmbedderConfig()
	if model != "" {
		ec.Model = model
	}
	provider, err := embedder.New(ec)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	log.Debug().Str("provider", provider.Provider()).Str("model", provider.Model()).Msg("embedder ready")
	return embedder.NewAdapter(provider, w.cfg.AdapterConfig()), nil
}

// queryEmbedder builds an adapter matching the collection's model unless a
// model was chosen explicitly
func (w *workspace) queryEmbedder(coll *types.Collection, model string) (*embedder.Adapter, error) {
	if model == "" && w.cfg.Embedding.Model == "" {
		model = coll.Model
		if embedder.DetectProvider(w.cfg.EmbedderConfig()) == embedder.ProviderLocal {
			w.cfg.Embedding.Dimension = coll.Dimension
		}
	}
	return w.newEmbedder(model)
}
