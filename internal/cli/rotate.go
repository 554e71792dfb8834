package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lzkelley/bkup-rpimage/internal/image"
	"github.com/lzkelley/bkup-rpimage/internal/rotate"
	"github.com/lzkelley/bkup-rpimage/internal/system"
)

// RotateCommand drives the staged refresh of the canonical backup file
type RotateCommand struct {
	ctx *GlobalContext

	dir     string
	name    string
	pattern string

	services []string

	snapshotTool string
	snapshotDir  string
	snapshotTag  string
	snapshotKeep int
	noSnapshot   bool

	source      string
	sizeMB      uint64
	compress    bool
	deleteAfter bool
	force       bool
}

// NewRotateCommand creates the rotate command
func NewRotateCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &RotateCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "rotate",
		Short: "Refresh the canonical backup through a staged rename",
		Long: `Refresh the single canonical backup image in a directory. The file is
renamed to a "pending-" staging name, the full backup runs against the
staged file, and only a successful run renames it back. A failed run
leaves the file under its staging name for inspection; it is never
overwritten in place. Dependent services are stopped first and
restarted afterwards on every path, and an optional external snapshot
tool preserves the previous backup before anything is renamed.`,
		Args: cobra.NoArgs,
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVar(&cmd.dir, "dir", ".", "Backup directory")
	cobraCmd.Flags().StringVar(&cmd.name, "name", "", "Backup filename for a first run (default: <hostname>.img)")
	cobraCmd.Flags().StringVar(&cmd.pattern, "pattern", "*.img", "Canonical backup filename pattern")
	cobraCmd.Flags().StringArrayVar(&cmd.services, "stop-service", nil, "Service to pause during the rotation (repeatable)")
	cobraCmd.Flags().StringVar(&cmd.snapshotTool, "snapshot-tool", "", "External snapshot tool to run before rotating")
	cobraCmd.Flags().StringVar(&cmd.snapshotDir, "snapshot-dir", "", "Directory the snapshot tool writes into")
	cobraCmd.Flags().StringVar(&cmd.snapshotTag, "snapshot-tag", "daily", "Snapshot series tag")
	cobraCmd.Flags().IntVar(&cmd.snapshotKeep, "snapshot-keep", 7, "Snapshots to retain")
	cobraCmd.Flags().BoolVar(&cmd.noSnapshot, "no-snapshot", false, "Skip the snapshot step")
	cobraCmd.Flags().StringVarP(&cmd.source, "source", "i", image.DefaultSourceDevice, "Source block device")
	cobraCmd.Flags().Uint64VarP(&cmd.sizeMB, "size", "s", 0, "Image size in MiB for a first run (default: size of the source device)")
	cobraCmd.Flags().BoolVarP(&cmd.compress, "gzip", "z", false, "Compress the image after a successful backup")
	cobraCmd.Flags().BoolVarP(&cmd.deleteAfter, "delete", "d", false, "Remove the raw image after compression (requires -z)")
	cobraCmd.Flags().BoolVarP(&cmd.force, "force", "f", false, "Overwrite an existing .gz")

	return cobraCmd
}

// Run executes the rotate command
func (c *RotateCommand) Run(cmd *cobra.Command, args []string) error {
	if err := system.RequireRoot(); err != nil {
		return err
	}

	deps := append(append([]string{}, backupDeps...), initDeps...)
	if len(c.services) > 0 {
		deps = append(deps, "systemctl")
	}
	snapshotting := c.snapshotTool != "" && !c.noSnapshot
	if snapshotting {
		deps = append(deps, c.snapshotTool)
	}
	if err := c.ctx.CheckDependencies(deps); err != nil {
		return err
	}

	if c.deleteAfter && !c.compress {
		return fmt.Errorf("-d removes the image after compression and needs -z")
	}
	if snapshotting && c.snapshotDir == "" {
		return fmt.Errorf("--snapshot-tool needs --snapshot-dir")
	}

	dir, err := filepath.Abs(c.dir)
	if err != nil {
		return fmt.Errorf("invalid backup directory: %w", err)
	}

	name := c.name
	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("cannot derive a backup name: %w", err)
		}
		name = host + ".img"
	}

	var snapshotter rotate.Snapshotter
	if snapshotting {
		snapshotter = rotate.NewCommandSnapshotter(c.ctx.Runner,
			c.snapshotTool, c.snapshotDir, c.snapshotTag, c.snapshotKeep)
	}

	rotator := &rotate.Rotator{
		Services: rotate.NewSystemdController(c.ctx.Runner),
		Snapshot: snapshotter,
		Logger:   c.ctx.Logger,
		Backup: func(imagePath string) error {
			return c.ctx.Lifecycle.Run(imagePath, image.RunOptions{
				CreateIfMissing: true,
				SourceDevice:    c.source,
				SizeMB:          c.sizeMB,
				Compress:        c.compress,
				ForceOverwrite:  c.force,
				DeleteSource:    c.deleteAfter,
			})
		},
	}

	return rotator.Run(rotate.Config{
		Dir:         dir,
		Pattern:     c.pattern,
		DefaultName: name,
		Services:    c.services,
	})
}
