package image

import (
	"errors"
	"fmt"
	"os"

	"github.com/lzkelley/bkup-rpimage/internal/system"
	"github.com/lzkelley/bkup-rpimage/internal/ui"
)

// ErrCreationFailed indicates the backing file did not materialize
var ErrCreationFailed = errors.New("image creation failed")

// Geometry describes an image's intended apparent size
type Geometry struct {
	Blocks    uint64 // block count
	BlockSize uint64 // bytes per block
}

// Bytes returns the apparent size the geometry describes
func (g Geometry) Bytes() uint64 {
	return g.Blocks * g.BlockSize
}

// MegabyteGeometry returns a geometry for an explicit whole-megabyte size
func MegabyteGeometry(megabytes uint64) Geometry {
	return Geometry{Blocks: megabytes, BlockSize: 1 << 20}
}

// Store creates and validates sparse image files
type Store struct {
	runner system.Runner
	logger *ui.Logger
}

// NewStore creates a new image store
func NewStore(runner system.Runner, logger *ui.Logger) *Store {
	return &Store{runner: runner, logger: logger}
}

// ProbeGeometry reads the sector count and sector size of a block device,
// the default sizing for an image cloned from it
func (s *Store) ProbeGeometry(device string) (Geometry, error) {
	szOut, err := s.runner.RunOutput("blockdev", "--getsz", device)
	if err != nil {
		return Geometry{}, fmt.Errorf("failed to read sector count of %s: %w", device, err)
	}
	blocks, err := system.ParseBlockCount(szOut)
	if err != nil {
		return Geometry{}, err
	}

	ssOut, err := s.runner.RunOutput("blockdev", "--getss", device)
	if err != nil {
		return Geometry{}, fmt.Errorf("failed to read sector size of %s: %w", device, err)
	}
	blockSize, err := system.ParseBlockCount(ssOut)
	if err != nil {
		return Geometry{}, err
	}

	return Geometry{Blocks: blocks, BlockSize: blockSize}, nil
}

// Create allocates a sparse file whose apparent size equals geom.Bytes().
// The file must not already exist; an image is never implicitly resized.
func (s *Store) Create(path string, geom Geometry) error {
	size := geom.Bytes()
	if size == 0 {
		return fmt.Errorf("%w: refusing to create zero-sized image", ErrCreationFailed)
	}

	// Sparse allocation succeeds regardless of free space, but the content
	// sync that follows will not. Warn early.
	if avail, err := system.GetAvailableSpace(path); err == nil && avail < size {
		s.logger.Warning("Filesystem holding %s has %s free, image declares %s",
			path, system.FormatSize(avail), system.FormatSize(size))
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("file already exists: %s", path)
		}
		return fmt.Errorf("%w: %v", ErrCreationFailed, err)
	}

	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("%w: failed to set file size: %v", ErrCreationFailed, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: %v", ErrCreationFailed, err)
	}

	// Detect silent truncation: filesystems without sparse-file support can
	// yield a present-but-empty file.
	written, err := system.GetFileSize(path)
	if err != nil || written == 0 {
		os.Remove(path)
		return fmt.Errorf("%w: %s is missing or empty after creation", ErrCreationFailed, path)
	}

	s.logger.Debug("Allocated sparse image %s (%d blocks x %d bytes = %s)",
		path, geom.Blocks, geom.BlockSize, system.FormatSize(size))
	return nil
}
