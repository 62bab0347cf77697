package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"docchat/internal/domain"
)

var chatQuestion string

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask a question about the indexed documents",
	Long: `Ask a single question, or start an interactive session when no
question is given. Answers stream to the terminal followed by the source
pages, related images and suggested follow-up questions.

Examples:
  docchat chat "how do I configure the vpn client"
  docchat chat            # interactive session`,
	Args: cobra.ArbitraryArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatQuestion, "query", "q", "", "question to ask")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	question := chatQuestion
	if question == "" && len(args) > 0 {
		question = strings.Join(args, " ")
	}
	if question != "" {
		return ask(a, question)
	}

	fmt.Println("Interactive session. Empty line or Ctrl-D to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			return nil
		}
		if err := ask(a, question); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func ask(a *app, question string) error {
	events, err := a.chat.Ask(context.Background(), question)
	if err != nil {
		return err
	}

	for event := range events {
		switch event.Type {
		case domain.EventContent:
			fmt.Print(event.Content)
		case domain.EventSources:
			fmt.Println()
			fmt.Println()
			printSources(event.Sources)
		case domain.EventImages:
			if len(event.Images) > 0 {
				fmt.Printf("Images:  %s\n", strings.Join(event.Images, ", "))
			}
		case domain.EventSuggestions:
			if len(event.Suggestions) > 0 {
				fmt.Println("Related questions:")
				for _, s := range event.Suggestions {
					fmt.Printf("  - %s\n", s)
				}
			}
		case domain.EventDone:
			fmt.Printf("Answer id: %s\n", event.AnswerID)
		case domain.EventError:
			fmt.Println()
			return fmt.Errorf("%s", event.Error)
		}
	}
	return nil
}

func printSources(sources []domain.Source) {
	if len(sources) == 0 {
		return
	}
	seen := make(map[string]bool)
	var lines []string
	for _, s := range sources {
		line := fmt.Sprintf("%s p.%d", s.Document, s.Page)
		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}
	fmt.Printf("Sources: %s\n", strings.Join(lines, ", "))
}
