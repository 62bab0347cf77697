package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently answered questions",
	RunE:  runHistory,
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <answer-id> <good|bad>",
	Short: "Rate an answer",
	Args:  cobra.ExactArgs(2),
	RunE:  runFeedback,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of answers to show")
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(feedbackCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	answers, err := a.history.Recent(historyLimit)
	if err != nil {
		return err
	}
	if len(answers) == 0 {
		fmt.Println("No answers yet.")
		return nil
	}

	for _, answer := range answers {
		when := time.UnixMilli(answer.Timestamp).Format("2006-01-02 15:04")
		rating := answer.Rating
		if rating == "" {
			rating = "-"
		}
		fmt.Printf("%s  %s  [%s]  %s\n", answer.ID, when, rating, answer.Query)
	}
	return nil
}

func runFeedback(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.history.Feedback(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Recorded %s feedback for %s.\n", args[1], args[0])
	return nil
}
