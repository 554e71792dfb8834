package cli

import (
	"github.com/lzkelley/bkup-rpimage/internal/image"
	"github.com/lzkelley/bkup-rpimage/internal/system"
	"github.com/lzkelley/bkup-rpimage/internal/ui"
)

// GlobalContext holds shared resources for all commands
type GlobalContext struct {
	Runner    system.Runner
	Logger    *ui.Logger
	Lifecycle *image.Lifecycle
	Discovery *image.Discovery
}

// NewGlobalContext creates a new global context
func NewGlobalContext(verbose, quiet, noColor, debug bool) *GlobalContext {
	executor := system.NewExecutor(debug)
	logger := ui.NewLogger(verbose, quiet, noColor)

	return &GlobalContext{
		Runner:    executor,
		Logger:    logger,
		Lifecycle: image.NewLifecycle(executor, logger),
		Discovery: image.NewDiscovery(executor),
	}
}

// Per-command tool requirements, verified before anything mutates.
var (
	// backupDeps covers a refresh of an existing image.
	backupDeps = []string{"losetup", "mount", "umount", "rsync"}

	// initDeps additionally covers creating and initializing a fresh
	// image: partition table replication, formatting, identity cloning.
	initDeps = []string{"blockdev", "parted", "sfdisk", "partprobe",
		"mkfs.vfat", "mkfs.ext4", "blkid", "e2fsck", "tune2fs"}

	mountDeps   = []string{"losetup", "mount", "umount"}
	cloneidDeps = []string{"losetup", "blkid", "e2fsck", "tune2fs", "sfdisk"}
	listDeps    = []string{"losetup"}
)

// CheckDependencies checks for required system commands
func (ctx *GlobalContext) CheckDependencies(deps []string) error {
	return system.CheckDependencies(ctx.Runner, deps...)
}
