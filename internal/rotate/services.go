package rotate

import (
	"fmt"

	"github.com/lzkelley/bkup-rpimage/internal/system"
)

// ServiceController pauses and resumes the services that must not write
// to the filesystems being backed up
type ServiceController interface {
	Stop(name string) error
	Start(name string) error
}

// SystemdController drives services through systemctl
type SystemdController struct {
	runner system.Runner
}

// NewSystemdController creates a systemctl-backed controller
func NewSystemdController(runner system.Runner) *SystemdController {
	return &SystemdController{runner: runner}
}

// Stop stops a unit
func (c *SystemdController) Stop(name string) error {
	if err := c.runner.Run("systemctl", "stop", name); err != nil {
		return fmt.Errorf("failed to stop %s: %w", name, err)
	}
	return nil
}

// Start starts a unit
func (c *SystemdController) Start(name string) error {
	if err := c.runner.Run("systemctl", "start", name); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	return nil
}
