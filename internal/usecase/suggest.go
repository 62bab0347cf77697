package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/phuslu/log"

	"docchat/internal/domain"
)

// generator is the slice of the model client the suggester needs.
type generator interface {
	Generate(ctx context.Context, query, contextText string) (string, error)
}

// suggestionTopics maps query keywords to canned follow-up questions.
// Checked in order so results are stable.
var suggestionTopics = []struct {
	keyword   string
	questions []string
}{
	{"password", []string{
		"How do I create a strong password?",
		"What are the password requirements?",
		"How often should I change my password?",
		"What is two-factor authentication?",
	}},
	{"vpn", []string{
		"How do I connect to the VPN?",
		"What if VPN connection fails?",
		"Can I use VPN on mobile devices?",
		"Which VPN server should I choose?",
	}},
	{"printer", []string{
		"How do I add a network printer?",
		"What if my print job is stuck?",
		"How do I share a printer?",
		"How do I troubleshoot printer issues?",
	}},
	{"email", []string{
		"How do I set up email on my phone?",
		"What is the email server configuration?",
		"How do I create an email signature?",
		"How do I set up an out-of-office message?",
	}},
	{"network", []string{
		"How do I connect to WiFi?",
		"What if internet is slow?",
		"How do I troubleshoot network issues?",
		"What are the network security policies?",
	}},
	{"software", []string{
		"How do I install new software?",
		"What software is approved for use?",
		"How do I update my applications?",
		"What if software won't start?",
	}},
}

var genericSuggestions = []string{
	"How can I troubleshoot this issue?",
	"What are the system requirements?",
	"Where can I find more documentation?",
	"Who should I contact for additional help?",
}

const maxSuggestions = 4

// Suggester produces follow-up questions for an answered query. Templates
// come first, then the model, then a fixed generic set; it never fails.
type Suggester struct {
	generator generator
	logger    log.Logger
}

func NewSuggester(g generator, logger log.Logger) *Suggester {
	return &Suggester{generator: g, logger: logger}
}

// Suggest returns up to four follow-up questions.
func (s *Suggester) Suggest(ctx context.Context, query string, results []domain.SearchResult) []string {
	if templated := templateSuggestions(query); len(templated) > 0 {
		return templated
	}

	generated, err := s.modelSuggestions(ctx, query, results)
	if err != nil {
		s.logger.Warn().Err(err).Msg("model suggestion generation failed")
		return genericSuggestions
	}
	if len(generated) == 0 {
		return genericSuggestions
	}
	return generated
}

func templateSuggestions(query string) []string {
	queryLower := strings.ToLower(query)
	for _, topic := range suggestionTopics {
		if !strings.Contains(queryLower, topic.keyword) {
			continue
		}
		var kept []string
		for _, question := range topic.questions {
			if !tooSimilar(queryLower, strings.ToLower(question)) {
				kept = append(kept, question)
			}
			if len(kept) == maxSuggestions {
				break
			}
		}
		return kept
	}
	return nil
}

var wordRe = regexp.MustCompile(`\w+`)

// tooSimilar reports whether a candidate question restates the query: more
// than 70% of the smaller question's words appear in the other.
func tooSimilar(a, b string) bool {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return false
	}
	overlap := 0
	for word := range wordsA {
		if wordsB[word] {
			overlap++
		}
	}
	smaller := len(wordsA)
	if len(wordsB) < smaller {
		smaller = len(wordsB)
	}
	return float64(overlap)/float64(smaller) > 0.7
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range wordRe.FindAllString(s, -1) {
		set[word] = true
	}
	return set
}

func (s *Suggester) modelSuggestions(ctx context.Context, query string, results []domain.SearchResult) ([]string, error) {
	var topics []string
	for i, r := range results {
		if i == 3 {
			break
		}
		snippet := r.Chunk.Text
		if runes := []rune(snippet); len(runes) > 200 {
			snippet = string(runes[:200]) + "..."
		}
		topics = append(topics, snippet)
	}
	contextSummary := ""
	if len(topics) > 0 {
		contextSummary = " Related topics: " + strings.Join(topics, " ")
	}

	prompt := fmt.Sprintf(`Based on this IT support question, suggest 4 related follow-up questions that users might ask next.

User asked: %q%s

Generate 4 specific, actionable follow-up questions. Return only the questions, one per line:`, query, contextSummary)

	response, err := s.generator.Generate(ctx, prompt, "")
	if err != nil {
		return nil, err
	}
	return parseSuggestions(response), nil
}

var (
	numberingRe = regexp.MustCompile(`^\d+\.\s*`)
	bulletRe    = regexp.MustCompile(`^[-•*]\s*`)
)

func parseSuggestions(response string) []string {
	var suggestions []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = numberingRe.ReplaceAllString(line, "")
		line = bulletRe.ReplaceAllString(line, "")
		if len(line) > 10 && strings.HasSuffix(line, "?") {
			suggestions = append(suggestions, line)
		}
		if len(suggestions) == maxSuggestions {
			break
		}
	}
	return suggestions
}
