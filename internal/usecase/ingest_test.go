package usecase

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docchat/internal/adapter/chunker"
	"docchat/internal/domain"
)

type fakeExtractor struct {
	pages       []domain.PageText
	images      map[int][]string
	validateErr error
	extractErr  error
}

func (f *fakeExtractor) Validate(string) error { return f.validateErr }

func (f *fakeExtractor) ExtractPages(string) ([]domain.PageText, error) {
	return f.pages, f.extractErr
}

func (f *fakeExtractor) ExtractImages(string, string) (map[int][]string, error) {
	if f.images == nil {
		return map[int][]string{}, nil
	}
	return f.images, nil
}

type fakeChunkSettings struct{}

func (fakeChunkSettings) GenerationParams() (float64, float64, error) { return 0.7, 1.0, nil }
func (fakeChunkSettings) SystemInstruction() (string, error)          { return "instruction", nil }
func (fakeChunkSettings) ChunkingParams() (int, int, error)           { return 50, 10, nil }

func newTestIngester(t *testing.T, ex *fakeExtractor, index *fakeIndex) (*Ingester, string) {
	t.Helper()
	imageDir := t.TempDir()
	return NewIngester(ex, chunker.New(), index, fakeChunkSettings{}, imageDir, testLogger()), imageDir
}

func TestIngestFileIndexesChunks(t *testing.T) {
	ex := &fakeExtractor{
		pages: []domain.PageText{
			{Page: 1, Text: "Connect to the VPN using the corporate client installed on your laptop."},
			{Page: 2, Text: "If the connection fails restart the client and verify your credentials are current."},
		},
		images: map[int][]string{2: {"guide_p2_aa.png"}},
	}
	index := &fakeIndex{}
	ingester, _ := newTestIngester(t, ex, index)

	result, err := ingester.IngestFile("/docs/guide.pdf")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Document != "guide.pdf" || result.Pages != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Chunks == 0 {
		t.Fatal("no chunks indexed")
	}
	if result.Images != 1 {
		t.Fatalf("expected 1 image, got %d", result.Images)
	}

	index.mu.Lock()
	defer index.mu.Unlock()
	if len(index.deleted) != 1 || index.deleted[0] != "guide.pdf" {
		t.Fatalf("previous chunks not replaced: %v", index.deleted)
	}
	if len(index.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(index.upserts))
	}
	for _, c := range index.upserts[0] {
		if c.Document != "guide.pdf" {
			t.Fatalf("chunk carries wrong document: %+v", c)
		}
	}
}

func TestIngestFileInvalidPDF(t *testing.T) {
	ex := &fakeExtractor{validateErr: errors.New("not a pdf")}
	ingester, _ := newTestIngester(t, ex, &fakeIndex{})

	if _, err := ingester.IngestFile("/docs/broken.pdf"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIngestFileEmptyDocument(t *testing.T) {
	ex := &fakeExtractor{pages: []domain.PageText{{Page: 1}}}
	index := &fakeIndex{}
	ingester, _ := newTestIngester(t, ex, index)

	result, err := ingester.IngestFile("/docs/scanned.pdf")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Chunks != 0 {
		t.Fatalf("expected 0 chunks, got %d", result.Chunks)
	}
	index.mu.Lock()
	defer index.mu.Unlock()
	if len(index.upserts) != 0 {
		t.Fatal("empty document must not be upserted")
	}
}

func TestIngestPages(t *testing.T) {
	index := &fakeIndex{}
	ingester, _ := newTestIngester(t, &fakeExtractor{}, index)

	pages := []domain.PageText{
		{Page: 1, Text: "Snapshots of the wiki export are ingested without a source PDF on disk."},
	}
	result, err := ingester.IngestPages("wiki-export.txt", pages)
	if err != nil {
		t.Fatalf("ingest pages: %v", err)
	}
	if result.Chunks == 0 {
		t.Fatal("no chunks indexed")
	}

	if _, err := ingester.IngestPages("   ", pages); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank document, got %v", err)
	}
}

func TestRemoveDocumentDeletesImages(t *testing.T) {
	index := &fakeIndex{}
	ingester, imageDir := newTestIngester(t, &fakeExtractor{}, index)

	keep := filepath.Join(imageDir, "other_p1_bb.png")
	drop := filepath.Join(imageDir, "guide_p2_aa.png")
	for _, path := range []string{keep, drop} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if _, err := ingester.RemoveDocument("guide.pdf"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(drop); !os.IsNotExist(err) {
		t.Fatal("document image not removed")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatal("unrelated image removed")
	}
}
