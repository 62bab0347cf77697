package domain

// Chunk is the unit of retrievable content: a bounded window of words cut
// from one document's extracted text. Chunks are immutable once created and
// are removed only when their owning document is deleted or reprocessed.
type Chunk struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Document  string   `json:"document"`
	Page      int      `json:"page"`
	Images    []string `json:"images,omitempty"`
	WordCount int      `json:"word_count"`
}

// PageText is one page of extracted document text, as handed to ingestion.
type PageText struct {
	Page int
	Text string
}

// SearchResult pairs a chunk with its similarity to a query.
// Similarity is reported as 1 - cosine distance, range [-1, 1].
type SearchResult struct {
	Chunk      Chunk
	Similarity float64
}

// Source is a citation emitted alongside a generated answer.
type Source struct {
	Document string `json:"document"`
	Page     int    `json:"page"`
}

// DocumentCount ranks a document by how many chunks it contributed.
type DocumentCount struct {
	Document string `json:"document"`
	Chunks   int    `json:"chunks"`
}

// IndexStats is a read-only aggregate over the vector index. Per-document
// numbers are computed from a bounded sample, not a full scan.
type IndexStats struct {
	TotalChunks    int             `json:"total_chunks"`
	DocumentsCount int             `json:"documents_count"`
	EmbeddingModel string          `json:"embedding_model"`
	Dimensions     int             `json:"embedding_dimensions"`
	AvgWordCount   int             `json:"avg_word_count"`
	TopDocuments   []DocumentCount `json:"top_documents"`
}

// Answer is one completed chat turn as persisted by the history store.
type Answer struct {
	ID              string   `json:"id"`
	Timestamp       int64    `json:"timestamp"` // unix milliseconds
	Query           string   `json:"query"`
	Response        string   `json:"response"`
	Sources         []Source `json:"sources"`
	Images          []string `json:"images"`
	Suggestions     []string `json:"suggestions"`
	ElapsedMS       int64    `json:"elapsed_ms"`
	ChunksRetrieved int      `json:"chunks_retrieved"`
	Rating          string   `json:"rating,omitempty"` // "good", "bad" or empty
}
