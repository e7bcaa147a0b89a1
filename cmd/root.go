package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"semdex/internal/config"
	"semdex/internal/embedder"
	"semdex/internal/index"
	"semdex/internal/store"
)

var (
	flagConfig  string
	flagDB      string
	flagOllama  string
	flagModel   string
	flagProject string
)

var rootCmd = &cobra.Command{
	Use:   "semdex",
	Short: "Live vector index of a local codebase for RAG retrieval",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default <project>/.semdex/index.db)")
	rootCmd.PersistentFlags().StringVar(&flagOllama, "ollama", "", "ollama base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "embedding model (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagProject, "project", "", "project name (default: root directory name)")
}

func loadConfig() (config.Config, error) {
	if flagConfig == "" {
		cfg := config.Default()
		applyFlagOverrides(&cfg)
		return cfg, nil
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	applyFlagOverrides(&cfg)
	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config) {
	if flagOllama != "" {
		cfg.Embedder.BaseURL = flagOllama
	}
	if flagModel != "" {
		cfg.Embedder.Model = flagModel
	}
}

// openIndexer wires the store, embedder, and indexer for a project root.
func openIndexer(root string, cfg config.Config) (*store.Store, *index.Indexer, error) {
	project := flagProject
	if project == "" {
		project = filepath.Base(root)
	}

	dbPath := flagDB
	if dbPath == "" {
		dbPath = cfg.Store.Path
	}
	if dbPath == "" {
		dbPath = filepath.Join(root, ".semdex", "index.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create db directory: %w", err)
	}

	st, err := store.Open(dbPath, cfg.Store.BaseTable, project, cfg.Store.Metric)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	// A configured preferred dimension fixes the schema before the first
	// write; otherwise it is discovered from the first embedding.
	if cfg.Embedder.Dimensions > 0 {
		if err := st.EnsureSchema(cfg.Embedder.Dimensions); err != nil {
			st.Close()
			return nil, nil, err
		}
	}

	emb := embedder.New(embedder.Config{
		BaseURL:     cfg.Embedder.BaseURL,
		Model:       cfg.Embedder.Model,
		MaxAttempts: cfg.Embedder.MaxAttempts,
		BackoffBase: time.Duration(cfg.Embedder.BackoffBaseMs) * time.Millisecond,
		BackoffStep: time.Duration(cfg.Embedder.BackoffStepMs) * time.Millisecond,
		MinInterval: time.Duration(cfg.Embedder.ThrottleMs) * time.Millisecond,
		CacheSize:   cfg.Embedder.CacheSize,
		Timeout:     time.Duration(cfg.Embedder.RequestTimeoutSec) * time.Second,
	})

	return st, index.New(st, emb, cfg.Indexing), nil
}
