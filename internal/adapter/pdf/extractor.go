// Package pdf extracts per-page text and embedded images from PDF files
// using pdfcpu.
package pdf

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/phuslu/log"

	"docchat/internal/domain"
)

// Extractor turns a PDF file into page texts and copies its embedded
// images into imageDir under stable names.
type Extractor struct {
	imageDir string
	logger   log.Logger
}

func NewExtractor(imageDir string, logger log.Logger) *Extractor {
	return &Extractor{imageDir: imageDir, logger: logger}
}

// Validate checks that path is a readable, well-formed PDF.
func (e *Extractor) Validate(path string) error {
	if err := api.ValidateFile(path, model.NewDefaultConfiguration()); err != nil {
		return fmt.Errorf("%s is not a valid PDF: %w", filepath.Base(path), err)
	}
	return nil
}

// ExtractPages returns the text of every page, in page order. Pages whose
// content could not be decoded come back with empty text rather than
// failing the whole document.
func (e *Extractor) ExtractPages(path string) ([]domain.PageText, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	pageCount := pdfCtx.PageCount
	if pageCount == 0 {
		return nil, fmt.Errorf("%s has no pages", filepath.Base(path))
	}

	outDir, err := os.MkdirTemp("", "docchat-pages-*")
	if err != nil {
		return nil, fmt.Errorf("create extraction directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		e.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("content extraction failed, pages will be empty")
		pages := make([]domain.PageText, pageCount)
		for i := range pages {
			pages[i] = domain.PageText{Page: i + 1}
		}
		return pages, nil
	}

	texts := make(map[int]string)
	entries, _ := os.ReadDir(outDir)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		page, ok := contentPageNumber(entry.Name())
		if !ok {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		texts[page] = decodeContentText(string(raw))
	}

	pages := make([]domain.PageText, pageCount)
	for i := range pages {
		pages[i] = domain.PageText{Page: i + 1, Text: texts[i+1]}
	}
	return pages, nil
}

// ExtractImages pulls the embedded images out of the PDF and stores them in
// the image directory as "{doc}_p{page}_{hash}{ext}". It returns the stored
// file names keyed by page number. Re-ingesting the same document
// overwrites the same names.
func (e *Extractor) ExtractImages(path, document string) (map[int][]string, error) {
	if err := os.MkdirAll(e.imageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}

	outDir, err := os.MkdirTemp("", "docchat-images-*")
	if err != nil {
		return nil, fmt.Errorf("create extraction directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractImagesFile(path, outDir, nil, model.NewDefaultConfiguration()); err != nil {
		// Many PDFs simply carry no extractable images.
		e.logger.Debug().Err(err).Str("file", filepath.Base(path)).Msg("image extraction failed")
		return map[int][]string{}, nil
	}

	byPage := make(map[int][]string)
	entries, _ := os.ReadDir(outDir)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		page, ok := imagePageNumber(entry.Name())
		if !ok {
			continue
		}
		src := filepath.Join(outDir, entry.Name())
		name, err := e.storeImage(src, document, page, filepath.Ext(entry.Name()))
		if err != nil {
			e.logger.Warn().Err(err).Str("image", entry.Name()).Msg("failed to store extracted image")
			continue
		}
		byPage[page] = append(byPage[page], name)
	}
	for page := range byPage {
		sort.Strings(byPage[page])
	}
	return byPage, nil
}

func (e *Extractor) storeImage(src, document string, page int, ext string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	digest := hex.EncodeToString(h.Sum(nil))[:8]

	base := strings.TrimSuffix(document, filepath.Ext(document))
	name := fmt.Sprintf("%s_p%d_%s%s", base, page, digest, ext)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	dst, err := os.Create(filepath.Join(e.imageDir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, f); err != nil {
		return "", err
	}
	return name, nil
}

var contentPageRe = regexp.MustCompile(`(?i)page_?(\d+)`)

func contentPageNumber(name string) (int, bool) {
	m := contentPageRe.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	page, err := strconv.Atoi(m[1])
	return page, err == nil && page > 0
}

// imagePageNumber parses pdfcpu's image file naming, "<base>_<page>_<id>.<ext>".
var imagePageRe = regexp.MustCompile(`_(\d+)_[^_]+\.[A-Za-z0-9]+$`)

func imagePageNumber(name string) (int, bool) {
	m := imagePageRe.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	page, err := strconv.Atoi(m[1])
	return page, err == nil && page > 0
}
