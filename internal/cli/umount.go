package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lzkelley/bkup-rpimage/internal/system"
)

// UmountCommand handles unmounting a previously mounted image
type UmountCommand struct {
	ctx *GlobalContext
}

// NewUmountCommand creates the umount command
func NewUmountCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &UmountCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "umount <image-path> [mount-dir]",
		Short: "Unmount and detach an image",
		Long: `Unmount an image's partitions and release its loop device. A mount
directory that was derived from the image name is removed; a directory
that was supplied to "mount" explicitly is left in place.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: cmd.Run,
	}

	return cobraCmd
}

// Run executes the umount command
func (c *UmountCommand) Run(cmd *cobra.Command, args []string) error {
	if err := system.RequireRoot(); err != nil {
		return err
	}

	if err := c.ctx.CheckDependencies(mountDeps); err != nil {
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

	return c.ctx.Lifecycle.Unmount(imagePath, mountDir)
}
