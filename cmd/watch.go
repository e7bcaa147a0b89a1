package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"semdex/internal/watch"
)

var flagSkipInitial bool

var watchCmd = &cobra.Command{
	Use:   "watch <path>",
	Short: "Index a codebase and keep the index in sync with file changes",
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

		st, ix, err := openIndexer(root, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if !flagSkipInitial {
			fmt.Printf("Indexing %s...\n", root)
			count, failures, err := ix.IndexProject(cmd.Context(), root)
			if err != nil {
				return err
			}
			fmt.Printf("Indexed %d files (%d failures)\n", count, len(failures))
		}

		mgr := watch.NewManager(cfg.Indexing,
			time.Duration(cfg.Watch.DebounceMs)*time.Millisecond, cfg.Watch.Workers)
		if err := mgr.StartWatchingProject(root, ix); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer mgr.StopCurrentWatcher()

		log.Printf("watching %s for changes (Ctrl+C to stop)", root)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("shutting down")
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&flagSkipInitial, "skip-initial", false, "skip the initial full index before watching")
	rootCmd.AddCommand(watchCmd)
}
