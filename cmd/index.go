package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a codebase for similarity search",
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

		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Indexing"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionShowCount(),
		)
		ix.Progress = func(done int, path string) {
			bar.Add(1)
		}

		fmt.Printf("Indexing %s...\n", root)
		start := time.Now()
		count, failures, err := ix.IndexProject(cmd.Context(), root)
		bar.Finish()
		fmt.Println()
		if err != nil {
			return err
		}

		fmt.Printf("Done in %s\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("  Files indexed: %d\n", count)
		if len(failures) > 0 {
			fmt.Printf("  Failures: %d\n", len(failures))
			for _, f := range failures {
				fmt.Printf("    %s: %v\n", f.Path, f.Err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
