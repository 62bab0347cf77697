package port

// Settings exposes operator-tunable values. Implementations read the backing
// store on every call so changes take effect on the next request without a
// restart.
type Settings interface {
	// GenerationParams returns the current sampling temperature and top-p.
	GenerationParams() (temperature, topP float64, err error)

	// SystemInstruction returns the instruction text placed at the head of
	// every prompt.
	SystemInstruction() (string, error)

	// ChunkingParams returns the current chunk size and overlap in words.
	ChunkingParams() (size, overlap int, err error)
}
