package image

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/schollz/progressbar/v3"

	"github.com/lzkelley/bkup-rpimage/internal/system"
	"github.com/lzkelley/bkup-rpimage/internal/ui"
)

var (
	// ErrOutputExists indicates the compressed artifact is already present
	ErrOutputExists = errors.New("compressed output already exists")
	// ErrEmptyOutput indicates compression produced nothing publishable
	ErrEmptyOutput = errors.New("compression produced no output")
)

// CompressOptions control a compression run
type CompressOptions struct {
	Force        bool // overwrite an existing .gz
	DeleteSource bool // remove the image after a successful promote

	// Interrupted is polled between chunks; a true return abandons the
	// stream and removes the temporary. Nil means never interrupted.
	Interrupted func() bool
}

// Compressor streams an image into a gzip artifact using a temporary
// path, promoting to the final name only when the output is complete
type Compressor struct {
	logger *ui.Logger
}

// NewCompressor creates a new compressor
func NewCompressor(logger *ui.Logger) *Compressor {
	return &Compressor{logger: logger}
}

// TempPath returns the in-flight output path for an image
func TempPath(imagePath string) string {
	return imagePath + ".gz.tmp"
}

// FinalPath returns the published artifact path for an image
func FinalPath(imagePath string) string {
	return imagePath + ".gz"
}

// Compress streams imagePath through gzip into TempPath, then renames to
// FinalPath. The final path is only ever written by the rename, so no
// partial artifact can be observed there.
func (c *Compressor) Compress(imagePath string, opts CompressOptions) (string, error) {
	final := FinalPath(imagePath)
	tmp := TempPath(imagePath)

	if !opts.Force && system.IsNonEmptyFile(final) {
		return "", fmt.Errorf("%w: %s (use force to overwrite)", ErrOutputExists, final)
	}

	in, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer in.Close()

	size, err := system.GetFileSize(imagePath)
	if err != nil {
		return "", err
	}

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary output: %w", err)
	}

	c.logger.Info("Compressing %s (%s)", imagePath, system.FormatSize(size))
	gz := gzip.NewWriter(out)
	if err := c.stream(gz, in, int64(size), opts.Interrupted); err != nil {
		gz.Close()
		out.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finish compression: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to flush output: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to close output: %w", err)
	}

	if !system.IsNonEmptyFile(tmp) {
		os.Remove(tmp)
		return "", fmt.Errorf("%w: %s", ErrEmptyOutput, tmp)
	}

	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to promote compressed output: %w", err)
	}
	syncDir(filepath.Dir(final))

	if opts.DeleteSource {
		if err := os.Remove(imagePath); err != nil {
			return final, fmt.Errorf("compressed, but failed to remove source image: %w", err)
		}
		c.logger.Info("Removed source image %s", imagePath)
	}

	finalSize, _ := system.GetFileSize(final)
	c.logger.Success("Compressed to %s (%s)", final, system.FormatSize(finalSize))
	return final, nil
}

// stream copies src into dst in chunks, reporting progress and honoring
// the interrupt poll between chunks
func (c *Compressor) stream(dst io.Writer, src io.Reader, total int64, interrupted func() bool) error {
	var bar *progressbar.ProgressBar
	if ui.IsTerminal() && !c.logger.Quiet {
		bar = progressbar.NewOptions64(total,
			progressbar.OptionSetDescription("compressing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	buf := make([]byte, 1<<20)
	for {
		if interrupted != nil && interrupted() {
			return fmt.Errorf("%w during compression", system.ErrInterrupted)
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("compression write failed: %w", werr)
			}
			if bar != nil {
				bar.Add(n)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("image read failed: %w", rerr)
		}
	}
}

// syncDir flushes a directory entry after a rename, so the promote
// survives a crash
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
