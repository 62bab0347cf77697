package embedding

import (
	"hash/fnv"
	"math"
	"strings"
)

// LocalEmbedder is a deterministic, dependency-free embedder: a normalized
// bag-of-hashed-words projection. Identical text always maps to the same
// unit vector, so exact-text queries score similarity 1.0. It is used for
// tests and for running without an embedding endpoint; it captures lexical,
// not semantic, similarity.
type LocalEmbedder struct {
	dimension int
}

func NewLocalEmbedder(dimension int) *LocalEmbedder {
	if dimension <= 0 {
		dimension = 768
	}
	return &LocalEmbedder{dimension: dimension}
}

func (e *LocalEmbedder) Embed(texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.embedOne(text)
	}
	return embeddings, nil
}

func (e *LocalEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dimension)

	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(word))
		sum := h.Sum64()

		idx := int(sum % uint64(e.dimension))
		if sum&(1<<63) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Empty text still needs a valid vector.
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

func (e *LocalEmbedder) ModelName() string {
	return "local-hash"
}
