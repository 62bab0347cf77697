package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.index.Stats()
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	fmt.Printf("Chunks:          %d\n", stats.TotalChunks)
	fmt.Printf("Documents:       %d\n", stats.DocumentsCount)
	fmt.Printf("Embedding model: %s (%d dimensions)\n", stats.EmbeddingModel, stats.Dimensions)
	if stats.TotalChunks > 0 {
		fmt.Printf("Avg words/chunk: %d\n", stats.AvgWordCount)
	}
	if len(stats.TopDocuments) > 0 {
		fmt.Println("Top documents:")
		for _, d := range stats.TopDocuments {
			fmt.Printf("  %-40s %d chunk(s)\n", d.Document, d.Chunks)
		}
	}
	return nil
}
