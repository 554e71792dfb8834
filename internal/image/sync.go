package image

import (
	"fmt"
	"time"

	"github.com/lzkelley/bkup-rpimage/internal/system"
	"github.com/lzkelley/bkup-rpimage/internal/ui"
)

// SyncEngine drives the differential copy of the live system into a
// mount session
type SyncEngine struct {
	runner system.Runner
	logger *ui.Logger
}

// NewSyncEngine creates a new sync engine
func NewSyncEngine(runner system.Runner, logger *ui.Logger) *SyncEngine {
	return &SyncEngine{runner: runner, logger: logger}
}

// DefaultLogPath names the rsync log next to the image, stamped with the
// invocation time
func DefaultLogPath(imagePath string, now time.Time) string {
	return fmt.Sprintf("%s-%s.log", imagePath, now.Format("20060102150405"))
}

// Sync copies the running system's root tree and boot tree into the
// session. Destination entries absent from the source are deleted; the
// root copy stays on one filesystem so other mounts (including the
// session itself under /mnt) are never pulled in. When the session's
// root is not actually a mount point the sync is skipped, not failed:
// writing a full system copy into an ordinary directory is never what
// the caller wants.
func (e *SyncEngine) Sync(sess *MountSession, logPath string) error {
	mounted, err := mountedCheck(sess.Dir)
	if err != nil || !mounted {
		e.logger.Warning("Skipping sync: %s is not a mount point", sess.Dir)
		return nil
	}

	rootArgs := []string{"-aHAXx", "--delete", "--numeric-ids"}
	if logPath != "" {
		rootArgs = append(rootArgs, "--log-file="+logPath)
	}
	rootArgs = append(rootArgs, "/", sess.Dir+"/")

	e.logger.Info("Syncing root filesystem to %s", sess.Dir)
	if err := e.runner.RunAttached("rsync", rootArgs...); err != nil {
		return fmt.Errorf("root sync failed: %w", err)
	}

	// The boot partition is FAT: no owners, links or xattrs, and its
	// timestamps are two-second granular.
	bootArgs := []string{"-rtD", "--modify-window=1", "--delete"}
	if logPath != "" {
		bootArgs = append(bootArgs, "--log-file="+logPath)
	}
	bootArgs = append(bootArgs, "/boot/", sess.BootDir()+"/")

	e.logger.Info("Syncing boot files to %s", sess.BootDir())
	if err := e.runner.RunAttached("rsync", bootArgs...); err != nil {
		return fmt.Errorf("boot sync failed: %w", err)
	}

	return nil
}
