package image

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lzkelley/bkup-rpimage/internal/system"
	"github.com/lzkelley/bkup-rpimage/internal/ui"
)

// DefaultSourceDevice is the SD card on a stock Raspberry Pi
const DefaultSourceDevice = "/dev/mmcblk0"

// RunOptions configure a full backup run
type RunOptions struct {
	CreateIfMissing bool   // create and initialize the image when missing
	SourceDevice    string // physical device being cloned
	SizeMB          uint64 // explicit size override; 0 probes the source geometry
	LogPath         string // rsync log destination, "" disables logging
	Compress        bool   // gzip the image after a successful sync
	ForceOverwrite  bool   // replace an existing .gz
	DeleteSource    bool   // remove the image after compressing
}

// MountOptions configure an independent mount invocation
type MountOptions struct {
	CreateIfMissing bool
	SourceDevice    string
	SizeMB          uint64
}

// Lifecycle wires the image managers into the multi-stage workflows.
// Every stage registers its undo action before moving on, so any failure
// or interruption unwinds in strict reverse order of acquisition.
type Lifecycle struct {
	Store      *Store
	Binder     *Binder
	Cloner     *Cloner
	Mounter    *Mounter
	Syncer     *SyncEngine
	Compressor *Compressor
	Logger     *ui.Logger
}

// NewLifecycle builds a lifecycle with all managers sharing one runner
func NewLifecycle(runner system.Runner, logger *ui.Logger) *Lifecycle {
	return &Lifecycle{
		Store:      NewStore(runner, logger),
		Binder:     NewBinder(runner),
		Cloner:     NewCloner(runner, logger),
		Mounter:    NewMounter(runner, logger),
		Syncer:     NewSyncEngine(runner, logger),
		Compressor: NewCompressor(logger),
		Logger:     logger,
	}
}

// Run executes the full backup workflow: ensure the image exists, attach
// it, clone partition layout and identity onto a fresh image, mount, sync
// the live system in, tear down, and optionally compress.
func (l *Lifecycle) Run(imagePath string, opts RunOptions) (err error) {
	abs, err := filepath.Abs(imagePath)
	if err != nil {
		return fmt.Errorf("invalid image path: %w", err)
	}

	guard := system.NewInterruptGuard()
	defer guard.Stop()

	cleanup := system.NewCleanupStack()
	defer func() {
		// A stage failure caused by the signal reports as interruption.
		if err != nil && guard.Interrupted() && !errors.Is(err, system.ErrInterrupted) {
			err = fmt.Errorf("%w: %v", system.ErrInterrupted, err)
		}
		if err != nil {
			if cerr := cleanup.Execute(); cerr != nil {
				l.Logger.Warning("Cleanup errors occurred: %v", cerr)
			}
		}
		if opts.LogPath != "" {
			l.Logger.Info("Sync log: %s", opts.LogPath)
		}
	}()

	// Step 1: Ensure the image exists; a fresh one needs its layout cloned
	fresh, err := l.ensureImage(abs, opts.CreateIfMissing, opts.SourceDevice, opts.SizeMB)
	if err != nil {
		return err
	}

	// Step 2: Attach to a loop device
	if err = guard.Checkpoint("device attach"); err != nil {
		return err
	}
	binding, err := l.Binder.Attach(abs)
	if err != nil {
		return err
	}
	cleanup.Add("detach "+binding.Device, func() error {
		return l.Binder.Detach(binding)
	})

	// Step 3: Clone partition table and identity onto a fresh image
	if fresh {
		if err = guard.Checkpoint("partition clone"); err != nil {
			return err
		}
		if err = l.Cloner.CloneTable(opts.SourceDevice, binding); err != nil {
			return err
		}
		if err = guard.Checkpoint("identity clone"); err != nil {
			return err
		}
		if err = l.Cloner.CloneIdentity(opts.SourceDevice, binding); err != nil {
			return err
		}
	}

	// Step 4: Mount root and boot
	if err = guard.Checkpoint("mount"); err != nil {
		return err
	}
	sess, err := l.Mounter.Open(binding, "")
	if err != nil {
		return err
	}
	cleanup.Add("close mount session", sess.Close)

	// Step 5: Sync the live system into the session
	if err = guard.Checkpoint("content sync"); err != nil {
		return err
	}
	if err = l.Syncer.Sync(sess, opts.LogPath); err != nil {
		return err
	}
	if err = guard.Checkpoint("teardown"); err != nil {
		return err
	}

	// Step 6: Orderly teardown; the cleanup stack stays armed until both
	// steps have landed
	if err = sess.Close(); err != nil {
		return err
	}
	if err = l.Binder.Detach(binding); err != nil {
		return err
	}
	cleanup.Clear()
	l.Logger.Success("Backup of %s completed", abs)

	// Step 7: Optional compression; interruption from here on only has
	// the temporary output to discard
	if opts.Compress {
		if err = guard.Checkpoint("compression"); err != nil {
			return err
		}
		if _, err = l.Compressor.Compress(abs, CompressOptions{
			Force:        opts.ForceOverwrite,
			DeleteSource: opts.DeleteSource,
			Interrupted:  guard.Interrupted,
		}); err != nil {
			return err
		}
	}

	return nil
}

// Mount attaches an image (creating and initializing it first when allowed
// and needed) and mounts it, leaving the session open for inspection
func (l *Lifecycle) Mount(imagePath, mountDir string, opts MountOptions) (sess *MountSession, err error) {
	abs, err := filepath.Abs(imagePath)
	if err != nil {
		return nil, fmt.Errorf("invalid image path: %w", err)
	}

	cleanup := system.NewCleanupStack()
	defer func() {
		if err != nil {
			if cerr := cleanup.Execute(); cerr != nil {
				l.Logger.Warning("Cleanup errors occurred: %v", cerr)
			}
		}
	}()

	fresh, err := l.ensureImage(abs, opts.CreateIfMissing, opts.SourceDevice, opts.SizeMB)
	if err != nil {
		return nil, err
	}

	binding, err := l.Binder.Attach(abs)
	if err != nil {
		return nil, err
	}
	cleanup.Add("detach "+binding.Device, func() error {
		return l.Binder.Detach(binding)
	})

	if fresh {
		if err = l.Cloner.CloneTable(opts.SourceDevice, binding); err != nil {
			return nil, err
		}
		if err = l.Cloner.CloneIdentity(opts.SourceDevice, binding); err != nil {
			return nil, err
		}
	}

	sess, err = l.Mounter.Open(binding, mountDir)
	if err != nil {
		return nil, err
	}
	cleanup.Clear()

	l.Logger.Success("Mounted %s at %s", abs, sess.Dir)
	return sess, nil
}

// Unmount tears down an independent mount of an image: unmounts whatever
// of its partitions remain mounted, releases the binding, and removes a
// derived mount directory
func (l *Lifecycle) Unmount(imagePath, mountDir string) error {
	abs, err := filepath.Abs(imagePath)
	if err != nil {
		return fmt.Errorf("invalid image path: %w", err)
	}

	device, err := l.Binder.FindByFile(abs)
	if err != nil {
		return err
	}
	if device == "" {
		return fmt.Errorf("%s is not attached", abs)
	}
	binding := Binding{Image: abs, Device: device}

	dir := mountDir
	ownsDir := false
	if dir == "" {
		dir = DefaultMountDir(abs)
		ownsDir = true
	}

	sess := l.Mounter.Resume(binding, dir, ownsDir)
	if err := sess.Close(); err != nil {
		return err
	}
	if err := l.Binder.Detach(binding); err != nil {
		return err
	}

	l.Logger.Success("Unmounted and detached %s", abs)
	return nil
}

// CloneID refreshes an existing image's partition-table id and filesystem
// UUID from the source device, leaving the image detached afterwards
func (l *Lifecycle) CloneID(imagePath, sourceDevice string) (err error) {
	abs, err := filepath.Abs(imagePath)
	if err != nil {
		return fmt.Errorf("invalid image path: %w", err)
	}
	if !system.IsNonEmptyFile(abs) {
		return fmt.Errorf("image %s does not exist", abs)
	}

	binding, err := l.Binder.Attach(abs)
	if err != nil {
		return err
	}
	defer func() {
		if derr := l.Binder.Detach(binding); derr != nil && err == nil {
			err = derr
		}
	}()

	return l.Cloner.CloneIdentity(sourceDevice, binding)
}

func (l *Lifecycle) ensureImage(path string, create bool, source string, sizeMB uint64) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("cannot stat image: %w", err)
	}

	if !create {
		return false, fmt.Errorf("image %s does not exist (pass -c to create it)", path)
	}

	var geom Geometry
	if sizeMB > 0 {
		geom = MegabyteGeometry(sizeMB)
	} else {
		var err error
		if geom, err = l.Store.ProbeGeometry(source); err != nil {
			return false, err
		}
	}

	l.Logger.Info("Creating %s image %s", system.FormatSize(geom.Bytes()), path)
	if err := l.Store.Create(path, geom); err != nil {
		return false, err
	}
	return true, nil
}
