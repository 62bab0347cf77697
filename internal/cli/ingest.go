package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docchat/internal/adapter/fs"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-directory>",
	Short: "Index PDF documents for retrieval",
	Long: `Index one PDF file, or every PDF found under a directory, into the
local vector store. Re-ingesting a document replaces its previous chunks.

Examples:
  docchat ingest manual.pdf     # Index a single PDF
  docchat ingest ./manuals      # Index every PDF under ./manuals`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	var paths []string
	if fs.IsDir(path) {
		walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes)
		files, err := walker.Walk(path)
		if err != nil {
			return fmt.Errorf("scan %s: %w", path, err)
		}
		for _, f := range files {
			paths = append(paths, f.Path)
		}
		if len(paths) == 0 {
			fmt.Println("No PDF documents found.")
			return nil
		}
	} else {
		paths = []string{path}
	}

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Ingesting"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	totalChunks := 0
	failed := 0
	for _, p := range paths {
		result, err := a.ingester.IngestFile(p)
		bar.Add(1)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "  %s: %v\n", filepath.Base(p), err)
			continue
		}
		totalChunks += result.Chunks
	}

	fmt.Printf("Ingested %d document(s), %d chunk(s) indexed.\n", len(paths)-failed, totalChunks)
	if failed > 0 {
		return fmt.Errorf("%d document(s) failed", failed)
	}
	return nil
}
