package embedding

import (
	"time"

	"docchat/internal/adapter/cache"
	"docchat/internal/port"
)

// embeddingTTL is effectively "until evicted": embeddings for identical
// text never change, so the TTL only bounds memory via the cache size cap.
const embeddingTTL = 24 * time.Hour

// CachedEmbedder wraps an Embedder with a content-hash cache so repeated
// identical text across chunks and queries never re-invokes the model.
type CachedEmbedder struct {
	inner port.Embedder
	cache *cache.Cache[[]float32]
}

func NewCachedEmbedder(inner port.Embedder, maxEntries int) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: cache.New[[]float32](maxEntries),
	}
}

func (e *CachedEmbedder) Embed(texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := e.cache.Get(cache.Key("embed", text)); ok {
			embeddings[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		fresh, err := e.inner.Embed(missing)
		if err != nil {
			return nil, err
		}
		for j, vec := range fresh {
			i := missingIdx[j]
			embeddings[i] = vec
			e.cache.Put(cache.Key("embed", texts[i]), vec, embeddingTTL)
		}
	}

	return embeddings, nil
}

func (e *CachedEmbedder) Dimension() int {
	return e.inner.Dimension()
}

func (e *CachedEmbedder) ModelName() string {
	return e.inner.ModelName()
}
