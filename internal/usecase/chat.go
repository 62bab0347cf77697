package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"docchat/internal/domain"
	"docchat/internal/port"
)

// streamGenerator is the slice of the model client the chat flow needs.
type streamGenerator interface {
	GenerateStream(ctx context.Context, query, contextText string) (<-chan string, <-chan error)
}

// Chat answers a question end to end: retrieve, generate, enrich with
// sources, images and suggestions, then persist.
type Chat struct {
	index     port.VectorIndex
	generator streamGenerator
	suggester *Suggester
	history   port.History
	topK      int
	logger    log.Logger
}

func NewChat(index port.VectorIndex, generator streamGenerator, suggester *Suggester, history port.History, topK int, logger log.Logger) *Chat {
	if topK <= 0 {
		topK = 5
	}
	return &Chat{
		index:     index,
		generator: generator,
		suggester: suggester,
		history:   history,
		topK:      topK,
		logger:    logger,
	}
}

// eventBuffer bounds the event channel towards the consumer.
const eventBuffer = 16

// Ask validates the query and starts the answer stream. Events arrive in a
// fixed order: content fragments, then sources, images, suggestions, and a
// final done event. On failure an error event terminates the stream in
// place of the remaining events.
func (c *Chat) Ask(ctx context.Context, query string) (<-chan domain.StreamEvent, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be blank: %w", domain.ErrInvalidInput)
	}

	answerID := "bot-" + uuid.NewString()
	events := make(chan domain.StreamEvent, eventBuffer)
	go c.answer(ctx, answerID, query, events)
	return events, nil
}

func (c *Chat) answer(ctx context.Context, answerID, query string, events chan<- domain.StreamEvent) {
	defer close(events)
	started := time.Now()

	results, err := c.index.Search(query, c.topK)
	if err != nil {
		c.logger.Error().Err(err).Str("answer", answerID).Msg("retrieval failed")
		c.emit(ctx, events, domain.StreamEvent{
			Type:     domain.EventError,
			AnswerID: answerID,
			Error:    "retrieval failed: " + err.Error(),
		})
		return
	}

	contextText := buildContext(results)

	fragments, errc := c.generator.GenerateStream(ctx, query, contextText)
	var response strings.Builder
	aborted := false
	for fragment := range fragments {
		response.WriteString(fragment)
		if !aborted && !c.emit(ctx, events, domain.StreamEvent{
			Type:     domain.EventContent,
			AnswerID: answerID,
			Content:  fragment,
		}) {
			// Consumer is gone. Keep draining so the generation finishes
			// and the answer can still be cached.
			aborted = true
		}
	}
	if err := <-errc; err != nil {
		c.logger.Error().Err(err).Str("answer", answerID).Msg("generation failed")
		c.emit(ctx, events, domain.StreamEvent{
			Type:     domain.EventError,
			AnswerID: answerID,
			Error:    "generation failed: " + err.Error(),
		})
		return
	}
	if aborted {
		return
	}

	sources := collectSources(results)
	images := collectImages(results)
	suggestions := c.suggester.Suggest(ctx, query, results)

	trailing := []domain.StreamEvent{
		{Type: domain.EventSources, AnswerID: answerID, Sources: sources},
		{Type: domain.EventImages, AnswerID: answerID, Images: images},
		{Type: domain.EventSuggestions, AnswerID: answerID, Suggestions: suggestions},
		{Type: domain.EventDone, AnswerID: answerID},
	}
	for _, event := range trailing {
		if !c.emit(ctx, events, event) {
			return
		}
	}

	answer := domain.Answer{
		ID:              answerID,
		Timestamp:       started.UnixMilli(),
		Query:           query,
		Response:        response.String(),
		Sources:         sources,
		Images:          images,
		Suggestions:     suggestions,
		ElapsedMS:       time.Since(started).Milliseconds(),
		ChunksRetrieved: len(results),
	}
	if err := c.history.SaveAnswer(answer); err != nil {
		// History is best effort; the answer already reached the consumer.
		c.logger.Warn().Err(err).Str("answer", answerID).Msg("failed to persist answer")
	}
}

func (c *Chat) emit(ctx context.Context, events chan<- domain.StreamEvent, event domain.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// buildContext renders retrieved chunks into the context block fed to the
// model.
func buildContext(results []domain.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "CHUNK %d [Source: %s, Page: %d]\n", i+1, r.Chunk.Document, r.Chunk.Page)
		fmt.Fprintf(&b, "Text: %s\n", r.Chunk.Text)
		if len(r.Chunk.Images) > 0 {
			fmt.Fprintf(&b, "Images: %s\n", strings.Join(r.Chunk.Images, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func collectSources(results []domain.SearchResult) []domain.Source {
	sources := make([]domain.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, domain.Source{
			Document: r.Chunk.Document,
			Page:     r.Chunk.Page,
		})
	}
	return sources
}

// collectImages gathers chunk images, deduplicated in first-seen order.
func collectImages(results []domain.SearchResult) []string {
	seen := make(map[string]bool)
	var images []string
	for _, r := range results {
		for _, image := range r.Chunk.Images {
			if seen[image] {
				continue
			}
			seen[image] = true
			images = append(images, image)
		}
	}
	return images
}
