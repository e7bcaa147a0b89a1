package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"semdex/internal/store"
)

var dropCmd = &cobra.Command{
	Use:   "drop <path>",
	Short: "Drop a project's index tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

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

		st, err := store.Open(dbPath, cfg.Store.BaseTable, project, cfg.Store.Metric)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		if err := st.Drop(); err != nil {
			return err
		}
		fmt.Printf("Dropped table %s\n", store.TableName(cfg.Store.BaseTable, project))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dropCmd)
}
