package image

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"github.com/lzkelley/bkup-rpimage/internal/system"
	"github.com/lzkelley/bkup-rpimage/internal/ui"
)

// Cloner duplicates a source device's partition layout and identity onto
// a bound image
type Cloner struct {
	runner system.Runner
	logger *ui.Logger
}

// NewCloner creates a new cloner
func NewCloner(runner system.Runner, logger *ui.Logger) *Cloner {
	return &Cloner{runner: runner, logger: logger}
}

// CloneTable writes a fresh partition table onto the bound device,
// replicates the source's layout, and formats the boot and root
// partitions
func (c *Cloner) CloneTable(source string, b Binding) error {
	c.logger.Info("Writing partition table to %s", b.Device)
	if err := c.runner.Run("parted", "-s", b.Device, "mklabel", "msdos"); err != nil {
		return fmt.Errorf("failed to write partition label: %w", err)
	}

	dump, err := c.runner.RunOutput("sfdisk", "-d", source)
	if err != nil {
		return fmt.Errorf("failed to dump partition table of %s: %w", source, err)
	}
	if err := c.runner.RunInput(dump, "sfdisk", "--force", b.Device); err != nil {
		return fmt.Errorf("failed to replicate partition table: %w", err)
	}

	// The kernel does not rescan a loop device's table on its own.
	if err := c.runner.Run("partprobe", b.Device); err != nil {
		return fmt.Errorf("failed to reread partition table: %w", err)
	}
	_ = c.runner.Run("udevadm", "settle")

	c.logger.Info("Formatting %s (vfat) and %s (ext4)", b.BootPartition(), b.RootPartition())
	if err := c.runner.Run("mkfs.vfat", "-F", "32", b.BootPartition()); err != nil {
		return fmt.Errorf("failed to format boot partition: %w", err)
	}
	if err := c.runner.Run("mkfs.ext4", "-q", b.RootPartition()); err != nil {
		return fmt.Errorf("failed to format root partition: %w", err)
	}
	return nil
}

// CloneIdentity copies the source's root filesystem UUID and partition
// table identifier onto the bound image, so boot configuration referring
// to either resolves identically on a restored card. Safe to re-run; the
// same identifiers are simply applied again.
func (c *Cloner) CloneIdentity(source string, b Binding) error {
	fsUUID, err := c.readBlkid(PartitionNode(source, 2), "UUID")
	if err != nil {
		return err
	}
	if _, err := uuid.Parse(fsUUID); err != nil {
		return fmt.Errorf("source filesystem UUID %q is malformed: %w", fsUUID, err)
	}

	ptUUID, err := c.readBlkid(source, "PTUUID")
	if err != nil {
		return err
	}
	if !isDiskID(ptUUID) {
		return fmt.Errorf("source partition table id %q is malformed", ptUUID)
	}

	// tune2fs refuses identity changes on a dirty filesystem, and a full
	// UUID rewrite touches every metadata block. This is the slow part.
	c.logger.Info("Cloning filesystem identity onto %s (this can take a while)", b.RootPartition())
	if err := c.runner.RunAttached("e2fsck", "-f", "-y", b.RootPartition()); err != nil {
		// Exit codes 1 and 2 mean errors were corrected, which is fine here.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() > 2 {
			return fmt.Errorf("filesystem check failed: %w", err)
		}
		c.logger.Warning("Filesystem errors on %s were repaired", b.RootPartition())
	}
	if err := c.runner.RunInput("y\n", "tune2fs", "-U", fsUUID, b.RootPartition()); err != nil {
		return fmt.Errorf("failed to set filesystem UUID: %w", err)
	}

	if err := c.runner.Run("sfdisk", "--disk-id", b.Device, "0x"+ptUUID); err != nil {
		return fmt.Errorf("failed to set partition table id: %w", err)
	}

	c.logger.Success("Identity cloned: UUID=%s PTUUID=%s", fsUUID, ptUUID)
	return nil
}

func (c *Cloner) readBlkid(device, tag string) (string, error) {
	output, err := c.runner.RunOutput("blkid", "-s", tag, "-o", "value", device)
	if err != nil {
		return "", fmt.Errorf("failed to read %s of %s: %w", tag, device, err)
	}
	value := strings.TrimSpace(output)
	if value == "" {
		return "", fmt.Errorf("blkid reported no %s for %s", tag, device)
	}
	return value, nil
}

// isDiskID reports whether s is an MBR disk identifier: 8 hex digits
func isDiskID(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
