package image

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/moby/sys/mountinfo"

	"github.com/lzkelley/bkup-rpimage/internal/system"
)

// Mockable for tests; the mount table is global state.
var (
	listMounts   = mountinfo.GetMounts
	mountedCheck = mountinfo.Mounted
)

// Attachment describes an image currently bound to a loop device
type Attachment struct {
	Image       string   `json:"image"`
	Device      string   `json:"device"`
	SizeBytes   uint64   `json:"size_bytes"`
	MountPoints []string `json:"mount_points,omitempty"`
}

// Discovery correlates loop bindings with the mount table
type Discovery struct {
	binder *Binder
}

// NewDiscovery creates a new discovery instance
func NewDiscovery(runner system.Runner) *Discovery {
	return &Discovery{binder: NewBinder(runner)}
}

// Active returns every attached image, sorted by device node
func (d *Discovery) Active() ([]Attachment, error) {
	devices, err := d.binder.GetAll()
	if err != nil {
		return nil, err
	}

	var attachments []Attachment
	for device, backFile := range devices {
		att := Attachment{
			Image:       backFile,
			Device:      device,
			MountPoints: mountPointsFor(device),
		}
		if size, err := system.GetFileSize(backFile); err == nil {
			att.SizeBytes = size
		}
		attachments = append(attachments, att)
	}
	sort.Slice(attachments, func(i, j int) bool {
		return attachments[i].Device < attachments[j].Device
	})
	return attachments, nil
}

// FindByImage returns the attachment backing path, or nil if not attached
func (d *Discovery) FindByImage(path string) (*Attachment, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	attachments, err := d.Active()
	if err != nil {
		return nil, err
	}
	for i := range attachments {
		if attachments[i].Image == abs {
			return &attachments[i], nil
		}
	}
	return nil, nil
}

// FindByMount returns the attachment with a partition mounted at dir,
// or nil if none
func (d *Discovery) FindByMount(dir string) (*Attachment, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	attachments, err := d.Active()
	if err != nil {
		return nil, err
	}
	for i := range attachments {
		for _, mp := range attachments[i].MountPoints {
			if mp == abs {
				return &attachments[i], nil
			}
		}
	}
	return nil, nil
}

// mountPointsFor lists mount points whose source is the device or one of
// its partitions, sorted. Mount table read failures yield an empty list;
// callers use this for diagnosis, not decisions.
func mountPointsFor(device string) []string {
	if device == "" {
		return nil
	}
	infos, err := listMounts(nil)
	if err != nil {
		return nil
	}
	var points []string
	for _, info := range infos {
		if info.Source == device || isPartitionOf(device, info.Source) {
			points = append(points, info.Mountpoint)
		}
	}
	sort.Strings(points)
	return points
}

// isPartitionOf reports whether node is a partition of device, following
// the same suffix rule PartitionNode uses. The separator matters:
// /dev/loop1p1 belongs to /dev/loop1, /dev/loop10 does not.
func isPartitionOf(device, node string) bool {
	if device == "" || !strings.HasPrefix(node, device) {
		return false
	}
	suffix := strings.TrimPrefix(node, device)
	if last := device[len(device)-1]; last >= '0' && last <= '9' {
		if !strings.HasPrefix(suffix, "p") {
			return false
		}
		suffix = strings.TrimPrefix(suffix, "p")
	}
	if suffix == "" {
		return false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
