package port

import "context"

// SamplingParams are the per-call generation knobs. They are read fresh from
// the settings store for every request, never fixed at construction.
type SamplingParams struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Stop        []string
}

// Model is the raw language model behind the generation client. A model
// instance is not safely reentrant; the generation client serializes access.
type Model interface {
	// Complete runs one non-streaming generation.
	Complete(ctx context.Context, prompt string, params SamplingParams) (string, error)

	// Stream runs one streaming generation, calling emit for every produced
	// fragment in order. A non-nil error from emit stops the generation.
	Stream(ctx context.Context, prompt string, params SamplingParams, emit func(fragment string) error) error

	// Name returns the model identifier.
	Name() string
}

// ModelLoader produces a ready Model, typically slowly. The generation
// client calls it once in the background at startup.
type ModelLoader interface {
	Load(ctx context.Context) (Model, error)
}
