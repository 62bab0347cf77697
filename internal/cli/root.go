package cli

import (
	"fmt"
	"os"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"docchat/config"
)

var (
	cfgFile string
	dataDir string
	cfg     *config.Config
	logger  log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Chat with your PDF documentation",
	Long: `docchat indexes PDF documents into a local vector store and answers
questions about them with a local language model, citing the pages the
answer came from.

Example usage:
  docchat ingest ./manuals          # Index every PDF under ./manuals
  docchat chat "how do I set up vpn" # Ask a question
  docchat stats                      # Show index statistics`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			wd, wdErr := os.Getwd()
			if wdErr != nil {
				return fmt.Errorf("failed to get working directory: %w", wdErr)
			}
			cfg, err = config.LoadFromDir(wd)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if err := cfg.EnsureDataDir(); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		logger = log.Logger{
			Level:  log.ParseLevel(cfg.Logging.Level),
			Writer: &log.ConsoleWriter{Writer: os.Stderr, ColorOutput: true},
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./docchat.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default from config)")
}
