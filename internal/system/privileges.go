package system

import (
	"errors"
	"fmt"
	"os"
)

// ErrNotRoot indicates the command needs elevated privileges
var ErrNotRoot = errors.New("root privileges required")

// IsRoot checks if running as root
func IsRoot() bool {
	return os.Geteuid() == 0
}

// RequireRoot ensures the program is running as root
func RequireRoot() error {
	if !IsRoot() {
		return fmt.Errorf("%w: this command must be run as root (try with sudo)", ErrNotRoot)
	}
	return nil
}
