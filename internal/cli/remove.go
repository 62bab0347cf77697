package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <document>",
	Short: "Remove an indexed document",
	Long: `Remove a document's chunks from the index and delete its extracted
images. The document name is the PDF file name as shown by "docchat stats".`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.ingester.RemoveDocument(args[0])
	if err != nil {
		return err
	}
	if removed == 0 {
		fmt.Printf("No chunks found for %s.\n", args[0])
		return nil
	}
	fmt.Printf("Removed %d chunk(s) of %s.\n", removed, args[0])
	return nil
}
