package rotate

import (
	"fmt"
	"strconv"

	"github.com/lzkelley/bkup-rpimage/internal/system"
)

// Snapshotter preserves the backup directory's prior state before a
// rotation mutates it
type Snapshotter interface {
	Snapshot(sourceDir string) error
}

// CommandSnapshotter shells out to an external rotation tool with the
// conventional argument order: source dir, snapshot dir, tag, retention
type CommandSnapshotter struct {
	runner system.Runner

	Tool        string // executable name or path
	SnapshotDir string // where snapshots accumulate
	Tag         string // snapshot series label
	Retain      int    // how many snapshots to keep
}

// NewCommandSnapshotter creates a snapshotter invoking tool
func NewCommandSnapshotter(runner system.Runner, tool, snapshotDir, tag string, retain int) *CommandSnapshotter {
	return &CommandSnapshotter{
		runner:      runner,
		Tool:        tool,
		SnapshotDir: snapshotDir,
		Tag:         tag,
		Retain:      retain,
	}
}

// Snapshot runs the external tool against sourceDir
func (s *CommandSnapshotter) Snapshot(sourceDir string) error {
	err := s.runner.Run(s.Tool, sourceDir, s.SnapshotDir, s.Tag, strconv.Itoa(s.Retain))
	if err != nil {
		return fmt.Errorf("snapshot of %s failed: %w", sourceDir, err)
	}
	return nil
}
