package image

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/lzkelley/bkup-rpimage/internal/system"
	"github.com/lzkelley/bkup-rpimage/internal/ui"
)

// ErrMountPointConflict indicates the derived mount directory already exists
var ErrMountPointConflict = errors.New("mount point conflict")

// Mockable for tests.
var mountParent = "/mnt"

// DefaultMountDir derives the session mount directory from the image name
func DefaultMountDir(imagePath string) string {
	return filepath.Join(mountParent, filepath.Base(imagePath))
}

// MountSession represents a mounted image: the root partition at Dir, the
// boot partition at Dir/boot
type MountSession struct {
	Binding Binding
	Dir     string

	ownsDir  bool // session created Dir and removes it on Close
	rootOpen bool
	bootOpen bool
	closed   bool

	runner system.Runner
	logger *ui.Logger
}

// BootDir returns the boot partition's mount point inside the session
func (s *MountSession) BootDir() string {
	return filepath.Join(s.Dir, "boot")
}

// Close flushes pending writes, unmounts boot then root, and removes the
// mount directory if the session created it. Partitions that are no
// longer mounted are skipped, so Close tolerates partial teardown and
// repeated calls.
func (s *MountSession) Close() error {
	if s.closed {
		return nil
	}

	// Sync before unmounting so a failure here cannot mean lost writes.
	unix.Sync()

	var firstErr error
	if s.bootOpen {
		if err := s.unmountIfMounted(s.BootDir()); err != nil {
			firstErr = err
		} else {
			s.bootOpen = false
		}
	}
	if s.rootOpen {
		if err := s.unmountIfMounted(s.Dir); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			s.rootOpen = false
		}
	}

	if firstErr != nil {
		return firstErr
	}
	if s.ownsDir {
		// The boot mount point sits inside the root mount, so a real
		// unmount takes it away with the filesystem. Clear any remnant
		// on the underlying directory before removing it.
		if err := os.Remove(s.BootDir()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove boot mount point: %w", err)
		}
		if err := os.Remove(s.Dir); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove mount directory: %w", err)
		}
	}
	s.closed = true
	return nil
}

func (s *MountSession) unmountIfMounted(dir string) error {
	if mounted, err := mountedCheck(dir); err != nil || !mounted {
		s.logger.Debug("%s is not mounted, skipping unmount", dir)
		return nil
	}
	if err := s.runner.Run("umount", dir); err != nil {
		return fmt.Errorf("failed to unmount %s: %w", dir, err)
	}
	return nil
}

// Mounter opens and resumes mount sessions
type Mounter struct {
	runner system.Runner
	logger *ui.Logger
}

// NewMounter creates a new mounter
func NewMounter(runner system.Runner, logger *ui.Logger) *Mounter {
	return &Mounter{runner: runner, logger: logger}
}

// Open mounts the bound image's root partition, then its boot partition
// under a boot subdirectory. With dir == "" the mount directory is derived
// from the image name and owned by the session; it must not already exist.
// An explicitly supplied directory must already exist and is left in place
// on Close.
func (m *Mounter) Open(b Binding, dir string) (*MountSession, error) {
	owns := false
	if dir == "" {
		dir = DefaultMountDir(b.Image)
		if _, err := os.Stat(dir); err == nil {
			return nil, fmt.Errorf("%w: %s already exists", ErrMountPointConflict, dir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create mount directory: %w", err)
		}
		owns = true
	} else {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("mount directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("mount point %s is not a directory", dir)
		}
	}

	sess := &MountSession{
		Binding: b,
		Dir:     dir,
		ownsDir: owns,
		runner:  m.runner,
		logger:  m.logger,
	}

	if err := m.runner.Run("mount", b.RootPartition(), dir); err != nil {
		if owns {
			os.Remove(dir)
		}
		return nil, fmt.Errorf("failed to mount root partition: %w", err)
	}
	sess.rootOpen = true

	bootDir := sess.BootDir()
	if err := os.MkdirAll(bootDir, 0755); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to create boot mount point: %w", err)
	}
	if err := m.runner.Run("mount", b.BootPartition(), bootDir); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to mount boot partition: %w", err)
	}
	sess.bootOpen = true

	m.logger.Debug("Mounted %s at %s", b.Device, dir)
	return sess, nil
}

// Resume reconstructs a session around an existing attachment so it can be
// torn down by an independent invocation. ownsDir marks a derived mount
// directory for removal.
func (m *Mounter) Resume(b Binding, dir string, ownsDir bool) *MountSession {
	return &MountSession{
		Binding:  b,
		Dir:      dir,
		ownsDir:  ownsDir,
		rootOpen: true,
		bootOpen: true,
		runner:   m.runner,
		logger:   m.logger,
	}
}
