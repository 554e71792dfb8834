package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lzkelley/bkup-rpimage/internal/image"
	"github.com/lzkelley/bkup-rpimage/internal/system"
)

// MountCommand handles mounting an image for inspection
type MountCommand struct {
	ctx    *GlobalContext
	create bool
	sizeMB uint64
	source string
}

// NewMountCommand creates the mount command
func NewMountCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &MountCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "mount <image-path> [mount-dir]",
		Short: "Attach and mount an image",
		Long: `Attach an image to a loop device and mount its root and boot
partitions. Without a mount directory one is derived from the image
name under /mnt; a supplied directory must already exist. The mounts
stay up until "umount" is run.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().BoolVarP(&cmd.create, "create", "c", false, "Create and initialize the image if missing")
	cobraCmd.Flags().Uint64VarP(&cmd.sizeMB, "size", "s", 0, "Image size in MiB (default: size of the source device)")
	cobraCmd.Flags().StringVarP(&cmd.source, "source", "i", image.DefaultSourceDevice, "Source block device")

	return cobraCmd
}

// Run executes the mount command
func (c *MountCommand) Run(cmd *cobra.Command, args []string) error {
	if err := system.RequireRoot(); err != nil {
		return err
	}

	deps := mountDeps
	if c.create {
		deps = append(append([]string{}, mountDeps...), initDeps...)
	}
	if err := c.ctx.CheckDependencies(deps); err != nil {
		return err
	}

	imagePath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	var mountDir string
	if len(args) > 1 {
		if mountDir, err = filepath.Abs(args[1]); err != nil {
			return fmt.Errorf("invalid mount point: %w", err)
		}
	}

	_, err = c.ctx.Lifecycle.Mount(imagePath, mountDir, image.MountOptions{
		CreateIfMissing: c.create,
		SourceDevice:    c.source,
		SizeMB:          c.sizeMB,
	})
	return err
}
