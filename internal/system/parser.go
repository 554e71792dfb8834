package system

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseBlockCount parses the single-number output of blockdev-style tools
// (sector counts, sector sizes)
func ParseBlockCount(output string) (uint64, error) {
	trimmed := strings.TrimSpace(output)
	value, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected blockdev output %q: %w", trimmed, err)
	}
	return value, nil
}

// FormatSize converts bytes to human-readable format
func FormatSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGT"[exp])
}
