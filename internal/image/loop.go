package image

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/lzkelley/bkup-rpimage/internal/system"
)

// ErrAlreadyBound indicates the image is attached to a loop device already
var ErrAlreadyBound = errors.New("image already attached")

// Binding represents an image attached to a loop device
type Binding struct {
	Image  string // absolute path of the backing image
	Device string // loop device node, e.g. /dev/loop0
}

// BootPartition returns the first partition node of the bound device
func (b Binding) BootPartition() string {
	return PartitionNode(b.Device, 1)
}

// RootPartition returns the second partition node of the bound device
func (b Binding) RootPartition() string {
	return PartitionNode(b.Device, 2)
}

// PartitionNode derives the n-th partition node for a device. Devices whose
// base name ends in a digit (loop0, mmcblk0) take a "p" separator, plain
// ones (sda) do not.
func PartitionNode(device string, n int) string {
	if device == "" {
		return ""
	}
	if last := device[len(device)-1]; last >= '0' && last <= '9' {
		return fmt.Sprintf("%sp%d", device, n)
	}
	return fmt.Sprintf("%s%d", device, n)
}

// Binder manages loop device bindings
type Binder struct {
	runner system.Runner
}

// NewBinder creates a new binder
func NewBinder(runner system.Runner) *Binder {
	return &Binder{runner: runner}
}

// Attach binds an image to a free loop device with partition scanning.
// An image already attached anywhere is a conflict, never a second binding;
// the error names the existing device and any mount points on it.
func (m *Binder) Attach(path string) (Binding, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Binding{}, fmt.Errorf("invalid image path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return Binding{}, fmt.Errorf("image not accessible: %w", err)
	}

	existing, err := m.FindByFile(abs)
	if err != nil {
		return Binding{}, err
	}
	if existing != "" {
		if mounts := mountPointsFor(existing); len(mounts) > 0 {
			return Binding{}, fmt.Errorf("%w: %s is bound to %s (mounted at %s)",
				ErrAlreadyBound, abs, existing, strings.Join(mounts, ", "))
		}
		return Binding{}, fmt.Errorf("%w: %s is bound to %s", ErrAlreadyBound, abs, existing)
	}

	output, err := m.runner.RunOutput("losetup", "-f", "--show", "-P", abs)
	if err != nil {
		return Binding{}, fmt.Errorf("failed to attach loop device: %w", err)
	}
	device := strings.TrimSpace(output)
	if device == "" {
		return Binding{}, fmt.Errorf("losetup reported no device for %s", abs)
	}

	// Give udev a chance to create the partition nodes. Absence of udev
	// (minimal containers) is not fatal.
	_ = m.runner.Run("udevadm", "settle")

	return Binding{Image: abs, Device: device}, nil
}

// Detach releases a loop device. It is idempotent within one teardown
// sequence: a binding that is already gone is not an error.
func (m *Binder) Detach(b Binding) error {
	if b.Device == "" {
		return nil
	}
	if err := m.runner.Run("losetup", "-d", b.Device); err != nil {
		// The device may have been released by an earlier teardown step.
		if current, ferr := m.FindByFile(b.Image); ferr == nil && current == "" {
			return nil
		}
		return fmt.Errorf("failed to detach loop device %s: %w", b.Device, err)
	}
	return nil
}

// FindByFile returns the loop device backed by path, or "" if none.
// A failed query is an error, distinct from a confirmed empty result.
func (m *Binder) FindByFile(path string) (string, error) {
	output, err := m.runner.RunOutput("losetup", "-J", "-j", path)
	if err != nil {
		return "", fmt.Errorf("failed to query loop bindings of %s: %w", path, err)
	}
	if strings.TrimSpace(output) == "" {
		return "", nil
	}
	return gjson.Get(output, "loopdevices.0.name").String(), nil
}

// GetAll returns all loop devices with their backing files
func (m *Binder) GetAll() (map[string]string, error) {
	output, err := m.runner.RunOutput("losetup", "-l", "-J")
	if err != nil {
		return nil, fmt.Errorf("failed to list loop devices: %w", err)
	}

	devices := make(map[string]string)
	if strings.TrimSpace(output) == "" {
		return devices, nil
	}
	gjson.Get(output, "loopdevices").ForEach(func(_, dev gjson.Result) bool {
		name := dev.Get("name").String()
		backFile := dev.Get("back-file").String()
		if name != "" && backFile != "" {
			// losetup marks vanished backing files with a suffix
			devices[name] = strings.TrimSuffix(backFile, " (deleted)")
		}
		return true
	})
	return devices, nil
}
