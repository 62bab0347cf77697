package llm

import (
	"strings"
	"unicode/utf8"
)

// stopScanner splits a raw model stream into emittable fragments. It holds
// back enough trailing bytes to recognize a stop token split across chunks,
// and never emits a fragment that ends mid-rune.
type stopScanner struct {
	stops    []string
	holdback int
	buf      []byte
	done     bool
}

func newStopScanner(stops []string) *stopScanner {
	holdback := 0
	for _, s := range stops {
		if len(s)-1 > holdback {
			holdback = len(s) - 1
		}
	}
	return &stopScanner{stops: stops, holdback: holdback}
}

// Push appends one raw chunk and returns the bytes that are safe to emit.
// done reports that a stop token was found; everything from the token on is
// discarded and further pushes are ignored.
func (s *stopScanner) Push(raw string) (fragment string, done bool) {
	if s.done {
		return "", true
	}
	s.buf = append(s.buf, raw...)
	pending := string(s.buf)

	for _, stop := range s.stops {
		if i := strings.Index(pending, stop); i >= 0 {
			s.buf = nil
			s.done = true
			return pending[:i], true
		}
	}

	keep := s.holdback
	if keep > len(pending) {
		keep = len(pending)
	}
	cut := len(pending) - keep
	for cut > 0 && !utf8.RuneStart(pending[cut]) {
		cut--
	}
	fragment = pending[:cut]
	s.buf = []byte(pending[cut:])
	return fragment, false
}

// Flush returns the held-back tail once the stream has ended without a stop
// token. A torn trailing rune, if the model was cut off mid-character, is
// dropped.
func (s *stopScanner) Flush() string {
	if s.done || len(s.buf) == 0 {
		return ""
	}
	tail := string(s.buf)
	s.buf = nil
	for len(tail) > 0 && !utf8.ValidString(tail) {
		tail = tail[:len(tail)-1]
	}
	return tail
}
