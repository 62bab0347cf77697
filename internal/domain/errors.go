package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed or empty request data. Surfaced to
	// the caller as-is, never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrModelUnavailable means the language model is not loaded or did not
	// become ready in time. Generation degrades to the deterministic
	// fallback instead of propagating this to callers.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrIndexUnavailable means the vector index storage could not be
	// opened. Fatal at construction; not recoverable mid-request.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrNotFound marks a lookup for an unknown record.
	ErrNotFound = errors.New("not found")
)

// StorageError reports a failed ingestion or deletion with enough detail to
// retry the specific operation. Counts reported alongside it never exceed
// what was actually committed.
type StorageError struct {
	Op       string
	Document string
	Err      error
}

func (e *StorageError) Error() string {
	if e.Document != "" {
		return fmt.Sprintf("storage %s failed for %q: %v", e.Op, e.Document, e.Err)
	}
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// GenerationError reports a failed model invocation. The orchestrator
// converts it into an inline error event rather than closing the stream.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
