package system

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sized")
	if err := os.WriteFile(path, []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}

	size, err := GetFileSize(path)
	if err != nil {
		t.Fatalf("GetFileSize: unexpected error: %v", err)
	}
	if size != 5 {
		t.Errorf("size = %d, want 5", size)
	}

	if _, err := GetFileSize(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("GetFileSize on missing file: expected error")
	}
}

func TestIsNonEmptyFile(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}
	full := filepath.Join(dir, "full")
	if err := os.WriteFile(full, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if IsNonEmptyFile(empty) {
		t.Error("IsNonEmptyFile(empty) = true")
	}
	if !IsNonEmptyFile(full) {
		t.Error("IsNonEmptyFile(full) = false")
	}
	if IsNonEmptyFile(filepath.Join(dir, "missing")) {
		t.Error("IsNonEmptyFile(missing) = true")
	}
	if IsNonEmptyFile(dir) {
		t.Error("IsNonEmptyFile(directory) = true")
	}
}

func TestGetAvailableSpace(t *testing.T) {
	space, err := GetAvailableSpace(filepath.Join(t.TempDir(), "backup.img"))
	if err != nil {
		t.Fatalf("GetAvailableSpace: unexpected error: %v", err)
	}
	if space == 0 {
		t.Error("available space = 0 on a writable temp dir")
	}
}
