package domain

// EventType identifies one kind of stream event.
type EventType string

const (
	EventContent     EventType = "content"
	EventSources     EventType = "sources"
	EventImages      EventType = "images"
	EventSuggestions EventType = "suggestions"
	EventDone        EventType = "done"
	EventError       EventType = "error"
)

// StreamEvent is one element of the ordered event stream produced for a
// query. The contract for consumers rendering incrementally: zero or more
// content events, then sources, images, suggestions, and a final done event.
// On failure the remainder of the stream is replaced by a single error event,
// so content already delivered is never silently lost.
type StreamEvent struct {
	Type        EventType `json:"type"`
	AnswerID    string    `json:"answer_id,omitempty"`
	Content     string    `json:"content,omitempty"`
	Sources     []Source  `json:"sources,omitempty"`
	Images      []string  `json:"images,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Error       string    `json:"error,omitempty"`
}
