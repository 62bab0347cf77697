package usecase

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phuslu/log"

	"docchat/internal/domain"
	"docchat/internal/port"
)

// extractor is the slice of the PDF adapter the ingester needs.
type extractor interface {
	Validate(path string) error
	ExtractPages(path string) ([]domain.PageText, error)
	ExtractImages(path, document string) (map[int][]string, error)
}

// wordChunker splits extracted text into indexable chunks.
type wordChunker interface {
	Chunk(document string, pages []domain.PageText, pageImages map[int][]string, size, overlap int) ([]domain.Chunk, error)
}

// Ingester turns PDF files into indexed chunks. Re-ingesting a document
// replaces its previous chunks.
type Ingester struct {
	extractor extractor
	chunker   wordChunker
	index     port.VectorIndex
	settings  port.Settings
	imageDir  string
	logger    log.Logger
}

func NewIngester(ex extractor, ch wordChunker, index port.VectorIndex, settings port.Settings, imageDir string, logger log.Logger) *Ingester {
	return &Ingester{
		extractor: ex,
		chunker:   ch,
		index:     index,
		settings:  settings,
		imageDir:  imageDir,
		logger:    logger,
	}
}

type IngestResult struct {
	Document string
	Pages    int
	Chunks   int
	Images   int
	Elapsed  time.Duration
}

// IngestFile indexes one PDF. Chunking parameters are read from settings at
// call time; documents already in the index keep the chunking they were
// ingested with.
func (i *Ingester) IngestFile(path string) (IngestResult, error) {
	started := time.Now()
	document := filepath.Base(path)

	if err := i.extractor.Validate(path); err != nil {
		return IngestResult{}, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
	}

	pages, err := i.extractor.ExtractPages(path)
	if err != nil {
		return IngestResult{}, fmt.Errorf("extract %s: %w", document, err)
	}

	pageImages, err := i.extractor.ExtractImages(path, document)
	if err != nil {
		i.logger.Warn().Err(err).Str("document", document).Msg("image extraction failed")
		pageImages = map[int][]string{}
	}
	imageCount := 0
	for _, names := range pageImages {
		imageCount += len(names)
	}

	size, overlap, err := i.settings.ChunkingParams()
	if err != nil {
		return IngestResult{}, fmt.Errorf("read chunking params: %w", err)
	}

	chunks, err := i.chunker.Chunk(document, pages, pageImages, size, overlap)
	if err != nil {
		return IngestResult{}, fmt.Errorf("chunk %s: %w", document, err)
	}

	if _, err := i.index.DeleteByDocument(document); err != nil {
		return IngestResult{}, fmt.Errorf("replace %s: %w", document, err)
	}

	result := IngestResult{
		Document: document,
		Pages:    len(pages),
		Images:   imageCount,
	}
	if len(chunks) == 0 {
		i.logger.Warn().Str("document", document).Msg("no text extracted, nothing to index")
		result.Elapsed = time.Since(started)
		return result, nil
	}

	indexed, err := i.index.Upsert(chunks)
	result.Chunks = indexed
	result.Elapsed = time.Since(started)
	if err != nil {
		return result, fmt.Errorf("index %s: %w", document, err)
	}

	i.logger.Info().
		Str("document", document).
		Int("pages", result.Pages).
		Int("chunks", result.Chunks).
		Int("images", result.Images).
		Dur("elapsed", result.Elapsed).
		Msg("document ingested")
	return result, nil
}

// IngestPages indexes already-extracted page texts under the given document
// name, bypassing PDF processing. Useful for text supplied by other means.
func (i *Ingester) IngestPages(document string, pages []domain.PageText) (IngestResult, error) {
	started := time.Now()
	if strings.TrimSpace(document) == "" {
		return IngestResult{}, fmt.Errorf("document name must not be blank: %w", domain.ErrInvalidInput)
	}

	size, overlap, err := i.settings.ChunkingParams()
	if err != nil {
		return IngestResult{}, fmt.Errorf("read chunking params: %w", err)
	}
	chunks, err := i.chunker.Chunk(document, pages, nil, size, overlap)
	if err != nil {
		return IngestResult{}, fmt.Errorf("chunk %s: %w", document, err)
	}
	if _, err := i.index.DeleteByDocument(document); err != nil {
		return IngestResult{}, fmt.Errorf("replace %s: %w", document, err)
	}

	result := IngestResult{Document: document, Pages: len(pages)}
	if len(chunks) > 0 {
		indexed, err := i.index.Upsert(chunks)
		result.Chunks = indexed
		if err != nil {
			result.Elapsed = time.Since(started)
			return result, fmt.Errorf("index %s: %w", document, err)
		}
	}
	result.Elapsed = time.Since(started)
	return result, nil
}

// RemoveDocument deletes a document's chunks and its extracted images. It
// returns the number of chunks removed.
func (i *Ingester) RemoveDocument(document string) (int, error) {
	removed, err := i.index.DeleteByDocument(document)
	if err != nil {
		return 0, fmt.Errorf("remove %s: %w", document, err)
	}

	prefix := strings.TrimSuffix(document, filepath.Ext(document)) + "_p"
	entries, err := os.ReadDir(i.imageDir)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
				os.Remove(filepath.Join(i.imageDir, entry.Name()))
			}
		}
	}

	i.logger.Info().Str("document", document).Int("chunks", removed).Msg("document removed")
	return removed, nil
}
