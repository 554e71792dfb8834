package image

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/lzkelley/bkup-rpimage/internal/system"
)

func writeImageFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sd.img")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompress(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		content := bytes.Repeat([]byte("raspberry pi backup "), 4096)
		path := writeImageFile(t, content)
		comp := NewCompressor(testLogger())

		final, err := comp.Compress(path, CompressOptions{})
		if err != nil {
			t.Fatalf("Compress: unexpected error: %v", err)
		}
		if final != path+".gz" {
			t.Errorf("final path = %q, want %q", final, path+".gz")
		}
		if _, err := os.Stat(TempPath(path)); !os.IsNotExist(err) {
			t.Error("temporary output left behind")
		}
		if _, err := os.Stat(path); err != nil {
			t.Error("source image removed without DeleteSource")
		}

		f, err := os.Open(final)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		gz, err := gzip.NewReader(f)
		if err != nil {
			t.Fatalf("output is not valid gzip: %v", err)
		}
		defer gz.Close()
		got, err := io.ReadAll(gz)
		if err != nil {
			t.Fatalf("decompression failed: %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Errorf("decompressed %d bytes, want %d matching bytes", len(got), len(content))
		}
	})

	t.Run("RefusesExistingOutput", func(t *testing.T) {
		path := writeImageFile(t, []byte("image"))
		if err := os.WriteFile(FinalPath(path), []byte("old artifact"), 0644); err != nil {
			t.Fatal(err)
		}

		comp := NewCompressor(testLogger())
		_, err := comp.Compress(path, CompressOptions{})
		if !errors.Is(err, ErrOutputExists) {
			t.Fatalf("got %v, want ErrOutputExists", err)
		}

		old, _ := os.ReadFile(FinalPath(path))
		if string(old) != "old artifact" {
			t.Error("existing artifact was modified")
		}
	})

	t.Run("ForceOverwrites", func(t *testing.T) {
		path := writeImageFile(t, []byte("image"))
		if err := os.WriteFile(FinalPath(path), []byte("old artifact"), 0644); err != nil {
			t.Fatal(err)
		}

		comp := NewCompressor(testLogger())
		if _, err := comp.Compress(path, CompressOptions{Force: true}); err != nil {
			t.Fatalf("Compress with Force: %v", err)
		}

		f, err := os.Open(FinalPath(path))
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		if _, err := gzip.NewReader(f); err != nil {
			t.Errorf("overwritten artifact is not valid gzip: %v", err)
		}
	})

	t.Run("DeleteSource", func(t *testing.T) {
		path := writeImageFile(t, []byte("image"))
		comp := NewCompressor(testLogger())

		if _, err := comp.Compress(path, CompressOptions{DeleteSource: true}); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("source image not removed")
		}
		if !system.IsNonEmptyFile(FinalPath(path)) {
			t.Error("artifact missing after source removal")
		}
	})

	t.Run("Interrupted", func(t *testing.T) {
		path := writeImageFile(t, bytes.Repeat([]byte("x"), 4<<20))
		comp := NewCompressor(testLogger())

		_, err := comp.Compress(path, CompressOptions{
			Interrupted: func() bool { return true },
		})
		if !errors.Is(err, system.ErrInterrupted) {
			t.Fatalf("got %v, want ErrInterrupted", err)
		}
		if _, err := os.Stat(FinalPath(path)); !os.IsNotExist(err) {
			t.Error("final artifact exists after interrupt")
		}
		if _, err := os.Stat(TempPath(path)); !os.IsNotExist(err) {
			t.Error("temporary output left behind after interrupt")
		}
		if _, err := os.Stat(path); err != nil {
			t.Error("source image must survive an interrupt")
		}
	})

	t.Run("MissingImage", func(t *testing.T) {
		comp := NewCompressor(testLogger())
		if _, err := comp.Compress(filepath.Join(t.TempDir(), "absent.img"), CompressOptions{}); err == nil {
			t.Fatal("expected missing image to fail")
		}
	})
}
