package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWalkFindsPDFsRecursively(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "handbook.pdf"))
	writeFile(t, filepath.Join(root, "guides", "vpn.pdf"))
	writeFile(t, filepath.Join(root, "guides", "notes.txt"))

	files, err := NewWalker(nil, nil).Walk(root)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 PDFs, got %d", len(files))
	}
	if filepath.Base(files[0].Path) != "vpn.pdf" && filepath.Base(files[1].Path) != "vpn.pdf" {
		t.Fatalf("nested PDF not found: %+v", files)
	}
}

func TestWalkExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.pdf"))
	writeFile(t, filepath.Join(root, "drafts", "skip.pdf"))

	files, err := NewWalker(nil, []string{"drafts/**"}).Walk(root)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0].Path) != "keep.pdf" {
		t.Fatalf("exclude not honored: %+v", files)
	}
}

func TestWalkSortsByPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.pdf"))
	writeFile(t, filepath.Join(root, "a.pdf"))

	files, err := NewWalker(nil, nil).Walk(root)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0].Path) != "a.pdf" {
		t.Fatalf("not sorted: %+v", files)
	}
}
