package port

import "docchat/internal/domain"

// VectorIndex stores chunk embeddings and answers similarity queries.
type VectorIndex interface {
	// Upsert embeds and inserts the given chunks. Duplicate chunk ids
	// overwrite. Returns the number of chunks actually committed.
	Upsert(chunks []domain.Chunk) (int, error)

	// Search embeds the query and returns up to k results ordered by
	// descending similarity. Ties keep insertion order.
	Search(query string, k int) ([]domain.SearchResult, error)

	// DeleteByDocument removes every chunk belonging to the named document
	// and returns how many were removed.
	DeleteByDocument(document string) (int, error)

	// Clear removes the entire index, leaving it ready for new upserts.
	Clear() error

	// Stats returns a read-only aggregate over the index.
	Stats() (domain.IndexStats, error)

	Close() error
}
