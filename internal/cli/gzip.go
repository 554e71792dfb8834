package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lzkelley/bkup-rpimage/internal/image"
	"github.com/lzkelley/bkup-rpimage/internal/system"
)

// GzipCommand handles standalone image compression
type GzipCommand struct {
	ctx          *GlobalContext
	deleteSource bool
	force        bool
}

// NewGzipCommand creates the gzip command
func NewGzipCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &GzipCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "gzip <image-path>",
		Short: "Compress an image",
		Long: `Stream an image through gzip into <image>.gz. The output is written
to a temporary file first and only renamed into place once it is
complete, so an interrupted run never leaves a partial .gz behind.`,
		Args: cobra.ExactArgs(1),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().BoolVarP(&cmd.deleteSource, "delete", "d", false, "Remove the image after a successful compression")
	cobraCmd.Flags().BoolVarP(&cmd.force, "force", "f", false, "Overwrite an existing .gz")

	return cobraCmd
}

// Run executes the gzip command
func (c *GzipCommand) Run(cmd *cobra.Command, args []string) error {
	if err := system.RequireRoot(); err != nil {
		return err
	}

	imagePath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if !system.IsNonEmptyFile(imagePath) {
		return fmt.Errorf("image %s does not exist", imagePath)
	}

	guard := system.NewInterruptGuard()
	defer guard.Stop()

	_, err = c.ctx.Lifecycle.Compressor.Compress(imagePath, image.CompressOptions{
		Force:        c.force,
		DeleteSource: c.deleteSource,
		Interrupted:  guard.Interrupted,
	})
	return err
}
