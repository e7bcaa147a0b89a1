package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"semdex/internal/rag"
)

var (
	flagK    int
	flagRoot string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find the indexed chunks most similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := flagRoot
		if root == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			root = wd
		}
		root, err := filepath.Abs(root)
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

		query := strings.Join(args, " ")
		results, err := rag.Retrieve(cmd.Context(), ix, query, flagK)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No results. Run 'semdex index <path>' first.")
			return nil
		}

		for i, r := range results {
			fmt.Printf("%d. %s (segment %d, distance %.4f)\n", i+1, r.FilePath, r.ChunkIndex, r.Distance)
			text := r.Text
			if idx := strings.IndexByte(text, '\n'); idx >= 0 {
				text = text[:idx]
			}
			if len(text) > 120 {
				text = text[:120] + "..."
			}
			fmt.Printf("   %s\n", text)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&flagK, "k", 10, "number of results")
	searchCmd.Flags().StringVar(&flagRoot, "path", "", "project root (default: current directory)")
	rootCmd.AddCommand(searchCmd)
}
