package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lzkelley/bkup-rpimage/internal/image"
	"github.com/lzkelley/bkup-rpimage/internal/system"
)

// CloneIDCommand refreshes an image's cloned identity
type CloneIDCommand struct {
	ctx    *GlobalContext
	source string
}

// NewCloneIDCommand creates the cloneid command
func NewCloneIDCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &CloneIDCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "cloneid <image-path>",
		Short: "Clone the source device's identity onto an image",
		Long: `Copy the source device's filesystem UUID and partition-table
identifier onto an existing image. Boot configuration that refers to
either identifier then resolves the same way on a card restored from
the image as on the original.`,
		Args: cobra.ExactArgs(1),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVarP(&cmd.source, "source", "i", image.DefaultSourceDevice, "Source block device")

	return cobraCmd
}

// Run executes the cloneid command
func (c *CloneIDCommand) Run(cmd *cobra.Command, args []string) error {
	if err := system.RequireRoot(); err != nil {
		return err
	}

	if err := c.ctx.CheckDependencies(cloneidDeps); err != nil {
		return err
	}

	imagePath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	return c.ctx.Lifecycle.CloneID(imagePath, c.source)
}
