package rotate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lzkelley/bkup-rpimage/internal/ui"
)

var (
	// ErrAmbiguousBackups indicates more than one canonical backup file;
	// the rotation never picks one on its own
	ErrAmbiguousBackups = errors.New("multiple canonical backup files")
	// ErrStagedPresent indicates a leftover sentinel file from an earlier
	// failed rotation that an operator has not resolved yet
	ErrStagedPresent = errors.New("staged backup already present")
	// ErrLifecycleFailed indicates the image refresh failed with the
	// backup file still under its sentinel name
	ErrLifecycleFailed = errors.New("backup lifecycle failed")
)

// Config describes one rotation run
type Config struct {
	Dir         string   // backup directory
	Pattern     string   // canonical filename glob, e.g. *.img
	DefaultName string   // canonical name to synthesize on a first run
	Services    []string // units to pause around the rotation
}

// Rotator refreshes the single canonical backup file through a
// stage-rename protocol: the canonical file is renamed to a sentinel
// name, the full image lifecycle runs against the sentinel, and only a
// successful run renames it back. At every observable moment the
// directory holds either the canonical file or the sentinel, never
// both and never neither (except inside a rename).
type Rotator struct {
	Services ServiceController
	Snapshot Snapshotter // nil skips snapshotting
	Logger   *ui.Logger

	// Backup refreshes the image at the given path; the rotation points
	// it at the sentinel-named file. On a first run the path does not
	// exist yet and Backup is expected to create it.
	Backup func(imagePath string) error
}

// Run drives one full rotation
func (r *Rotator) Run(cfg Config) (err error) {
	if cfg.Pattern == "" {
		cfg.Pattern = "*.img"
	}

	// Step 1: Pause dependent services. They restart on every exit path,
	// even when the scan below finds nothing to do.
	stopped := r.stopServices(cfg.Services)
	defer func() {
		if rerr := r.startServices(stopped); rerr != nil && err == nil {
			err = rerr
		}
	}()

	// Step 2: Classify the backup directory
	scan, err := ScanDir(cfg.Dir, cfg.Pattern)
	if err != nil {
		return err
	}
	if len(scan.Staged) > 0 {
		return fmt.Errorf("%w: %s (inspect and rename before rotating again)",
			ErrStagedPresent, strings.Join(scan.Staged, ", "))
	}

	var canonical string
	switch scan.Outcome {
	case Ambiguous:
		return fmt.Errorf("%w in %s: %s (remove all but one)",
			ErrAmbiguousBackups, cfg.Dir, strings.Join(scan.Canonical, ", "))
	case SinglePresent:
		canonical = scan.One()
	case NonePresent:
		if cfg.DefaultName == "" {
			return fmt.Errorf("no backup matching %q in %s and no default name configured",
				cfg.Pattern, cfg.Dir)
		}
		canonical = filepath.Join(cfg.Dir, cfg.DefaultName)
		r.Logger.Info("No existing backup; starting fresh as %s", canonical)
	}
	staged := SentinelPath(canonical)

	// Step 3: Snapshot the prior state, but only when there is one
	if scan.Outcome == SinglePresent {
		if r.Snapshot != nil {
			r.Logger.Info("Snapshotting %s before rotation", cfg.Dir)
			if err := r.Snapshot.Snapshot(cfg.Dir); err != nil {
				return err
			}
		} else {
			r.Logger.Warning("Snapshotting disabled; rotating without a safety copy")
		}

		// Step 4: Stage the canonical file under the sentinel name
		if err := os.Rename(canonical, staged); err != nil {
			return fmt.Errorf("failed to stage %s: %w", canonical, err)
		}
	}

	// Step 5: Refresh the image under its sentinel name
	r.Logger.Info("Refreshing backup %s", staged)
	if err := r.Backup(staged); err != nil {
		// Both causes must stay visible: the lifecycle classification for
		// operators and the inner error for exit-code mapping.
		return fmt.Errorf("%w: %w (backup left staged at %s)", ErrLifecycleFailed, err, staged)
	}

	// Step 6: Commit by renaming the sentinel back, along with any
	// compressed artifact the lifecycle produced next to it
	renamed := 0
	for _, ext := range []string{"", ".gz"} {
		from, to := staged+ext, canonical+ext
		if _, serr := os.Stat(from); serr != nil {
			continue
		}
		if rerr := os.Rename(from, to); rerr != nil {
			return fmt.Errorf("%w: failed to commit %s: %w", ErrLifecycleFailed, from, rerr)
		}
		renamed++
	}
	if renamed == 0 {
		return fmt.Errorf("%w: nothing to commit at %s", ErrLifecycleFailed, staged)
	}

	r.Logger.Success("Rotation complete: %s", canonical)
	return nil
}

// stopServices stops each unit, returning the ones that were told to
// stop so the restart path mirrors it. A stop failure is not fatal: the
// unit may simply not be running.
func (r *Rotator) stopServices(names []string) []string {
	var stopped []string
	for _, name := range names {
		r.Logger.Info("Stopping service %s", name)
		if err := r.Services.Stop(name); err != nil {
			r.Logger.Warning("Could not stop %s: %v", name, err)
		}
		stopped = append(stopped, name)
	}
	return stopped
}

// startServices restarts units in reverse stop order, collecting the
// first failure but always attempting every unit.
func (r *Rotator) startServices(names []string) error {
	var firstErr error
	for i := len(names) - 1; i >= 0; i-- {
		r.Logger.Info("Starting service %s", names[i])
		if err := r.Services.Start(names[i]); err != nil {
			r.Logger.Warning("Could not start %s: %v", names[i], err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
