package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lzkelley/bkup-rpimage/internal/image"
	"github.com/lzkelley/bkup-rpimage/internal/system"
	"github.com/lzkelley/bkup-rpimage/internal/ui"
)

// ListCommand handles listing attached images
type ListCommand struct {
	ctx  *GlobalContext
	json bool
}

// NewListCommand creates the list command
func NewListCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &ListCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "list",
		Short: "List attached images",
		Long:  `List images currently attached to loop devices, with their mount points.`,
		RunE:  cmd.Run,
	}

	cobraCmd.Flags().BoolVarP(&cmd.json, "json", "j", false, "JSON output")

	return cobraCmd
}

// Run executes the list command
func (c *ListCommand) Run(cmd *cobra.Command, args []string) error {
	if err := system.RequireRoot(); err != nil {
		return err
	}

	if err := c.ctx.CheckDependencies(listDeps); err != nil {
		return err
	}

	attachments, err := c.ctx.Discovery.Active()
	if err != nil {
		return fmt.Errorf("failed to discover attached images: %w", err)
	}

	if c.json {
		if attachments == nil {
			attachments = []image.Attachment{}
		}
		return ui.PrintJSON(attachments)
	}

	if len(attachments) == 0 {
		fmt.Println("No attached images found")
		return nil
	}

	c.printTable(attachments)
	return nil
}

func (c *ListCommand) printTable(attachments []image.Attachment) {
	table := ui.NewTable("IMAGE", "DEVICE", "SIZE", "MOUNTED AT")

	for _, att := range attachments {
		size := "-"
		if att.SizeBytes > 0 {
			size = system.FormatSize(att.SizeBytes)
		}

		mounted := "-"
		if len(att.MountPoints) > 0 {
			mounted = strings.Join(att.MountPoints, ", ")
		}

		table.AddRow(att.Image, att.Device, size, mounted)
	}

	table.Print()
}
