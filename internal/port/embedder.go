package port

// Embedder converts text into fixed-dimensionality vectors.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}
