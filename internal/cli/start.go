package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lzkelley/bkup-rpimage/internal/image"
	"github.com/lzkelley/bkup-rpimage/internal/system"
)

// StartCommand handles the full backup workflow
type StartCommand struct {
	ctx         *GlobalContext
	create      bool
	logDefault  bool
	logFile     string
	compress    bool
	deleteAfter bool
	force       bool
	sizeMB      uint64
	source      string
}

// NewStartCommand creates the start command
func NewStartCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &StartCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "start <image-path>",
		Short: "Back up the running system into an image",
		Long: `Back up the running system into a loop-mounted image file.

The image is attached to a loop device, mounted, and refreshed with an
rsync pass over the root and boot filesystems. With -c a missing image
is first created as a sparse file sized like the source device, given
the source's partition table, filesystems, UUID and disk identifier, so
the finished image can be written back to a card as a drop-in
replacement.`,
		Args: cobra.ExactArgs(1),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().BoolVarP(&cmd.create, "create", "c", false, "Create and initialize the image if missing")
	cobraCmd.Flags().BoolVarP(&cmd.logDefault, "log", "l", false, "Write an rsync log next to the image")
	cobraCmd.Flags().StringVarP(&cmd.logFile, "log-file", "L", "", "Write the rsync log to this path")
	cobraCmd.Flags().BoolVarP(&cmd.compress, "gzip", "z", false, "Compress the image after a successful backup")
	cobraCmd.Flags().BoolVarP(&cmd.deleteAfter, "delete", "d", false, "Remove the raw image after compression (requires -z)")
	cobraCmd.Flags().BoolVarP(&cmd.force, "force", "f", false, "Overwrite an existing .gz")
	cobraCmd.Flags().Uint64VarP(&cmd.sizeMB, "size", "s", 0, "Image size in MiB (default: size of the source device)")
	cobraCmd.Flags().StringVarP(&cmd.source, "source", "i", image.DefaultSourceDevice, "Source block device")

	return cobraCmd
}

// Run executes the start command
func (c *StartCommand) Run(cmd *cobra.Command, args []string) error {
	if err := system.RequireRoot(); err != nil {
		return err
	}

	deps := backupDeps
	if c.create {
		deps = append(append([]string{}, backupDeps...), initDeps...)
	}
	if err := c.ctx.CheckDependencies(deps); err != nil {
		return err
	}

	if c.deleteAfter && !c.compress {
		return fmt.Errorf("-d removes the image after compression and needs -z")
	}

	imagePath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	logPath := c.logFile
	if logPath == "" && c.logDefault {
		logPath = image.DefaultLogPath(imagePath, time.Now())
	}

	return c.ctx.Lifecycle.Run(imagePath, image.RunOptions{
		CreateIfMissing: c.create,
		SourceDevice:    c.source,
		SizeMB:          c.sizeMB,
		LogPath:         logPath,
		Compress:        c.compress,
		ForceOverwrite:  c.force,
		DeleteSource:    c.deleteAfter,
	})
}
