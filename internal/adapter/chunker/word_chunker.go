package chunker

import (
	"fmt"
	"strings"

	"docchat/internal/domain"
)

// WordChunker splits extracted document text into overlapping fixed-size
// word windows. Page numbers are estimated by linear interpolation of the
// chunk's starting word offset across the document, which is lossy for
// multi-column or uneven pages; the behavior is kept reproducible rather
// than precise.
type WordChunker struct{}

func New() *WordChunker {
	return &WordChunker{}
}

// Chunk splits the document into chunks of size words with the given
// overlap. pages carries the per-page extracted text, pageImages the image
// filenames extracted per page (may be nil). Every non-final chunk has
// exactly size words; consecutive chunks share exactly overlap words.
func (c *WordChunker) Chunk(document string, pages []domain.PageText, pageImages map[int][]string, size, overlap int) ([]domain.Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidInput, size)
	}
	if overlap < 0 || overlap >= size {
		// overlap >= size would never advance the window.
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", domain.ErrInvalidInput, overlap, size)
	}

	var sb strings.Builder
	for _, p := range pages {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Text)
	}
	fullText := sb.String()

	words := strings.Fields(fullText)
	totalPages := len(pages)
	if totalPages == 0 {
		totalPages = 1
	}

	if len(words) == 0 {
		return nil, nil
	}

	if len(words) <= size {
		return []domain.Chunk{{
			ID:        chunkID(document, 1),
			Text:      strings.TrimSpace(fullText),
			Document:  document,
			Page:      1,
			Images:    pageImages[1],
			WordCount: len(words),
		}}, nil
	}

	var chunks []domain.Chunk
	seq := 1
	start := 0

	for start < len(words) {
		end := start + size
		if end > len(words) {
			end = len(words)
		}

		page := estimatePage(start, len(words), totalPages)
		chunks = append(chunks, domain.Chunk{
			ID:        chunkID(document, seq),
			Text:      strings.Join(words[start:end], " "),
			Document:  document,
			Page:      page,
			Images:    adjacentImages(pageImages, page),
			WordCount: end - start,
		})
		seq++

		if end >= len(words) {
			break
		}
		start = end - overlap
	}

	return chunks, nil
}

func chunkID(document string, seq int) string {
	return fmt.Sprintf("%s_chunk_%d", document, seq)
}

// estimatePage maps a starting word offset to a page by linear
// interpolation, clamped to [1, totalPages].
func estimatePage(wordIndex, totalWords, totalPages int) int {
	if totalWords == 0 {
		return 1
	}
	page := wordIndex*totalPages/totalWords + 1
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// adjacentImages collects image references from the estimated page and its
// immediate neighbors, deliberately generous so illustrations near chunk
// boundaries are not missed. Duplicates are dropped, order preserved.
func adjacentImages(pageImages map[int][]string, page int) []string {
	if pageImages == nil {
		return nil
	}

	var images []string
	seen := make(map[string]bool)
	for _, p := range []int{page - 1, page, page + 1} {
		if p < 1 {
			continue
		}
		for _, img := range pageImages[p] {
			if !seen[img] {
				seen[img] = true
				images = append(images, img)
			}
		}
	}
	return images
}
