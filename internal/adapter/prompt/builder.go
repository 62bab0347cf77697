package prompt

import "fmt"

// truncationMarker is appended when retrieved context exceeds the budget.
const truncationMarker = "... [truncated]"

// Builder assembles the instruction prompt handed to the model. The layout
// is fixed: instruction, context, query, response cue. Evaluation harnesses
// key off this exact shape, so it must not drift.
type Builder struct {
	maxContextChars int
}

func NewBuilder(maxContextChars int) *Builder {
	if maxContextChars <= 0 {
		maxContextChars = 3000
	}
	return &Builder{maxContextChars: maxContextChars}
}

// Build returns the full prompt, with context truncated to the configured
// character budget.
func (b *Builder) Build(instruction, context, query string) string {
	return fmt.Sprintf(`<s>[INST] %s

Context:
%s

User Query: %s

Provide a helpful and accurate response based on the context provided. [/INST]`,
		instruction, b.Truncate(context), query)
}

// Truncate bounds context to the character budget with a visible marker,
// never splitting a multi-byte character.
func (b *Builder) Truncate(context string) string {
	if len(context) <= b.maxContextChars {
		return context
	}
	runes := []rune(context)
	if len(runes) <= b.maxContextChars {
		return context
	}
	return string(runes[:b.maxContextChars]) + truncationMarker
}

// MaxContextChars reports the configured budget.
func (b *Builder) MaxContextChars() int {
	return b.maxContextChars
}
