package rotate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SentinelPrefix marks a backup file as mid-rotation, not yet committed
const SentinelPrefix = "pending-"

// Outcome is the closed set of canonical-file scan results
type Outcome int

const (
	// NonePresent means no canonical backup file exists (first run)
	NonePresent Outcome = iota
	// SinglePresent means exactly one canonical backup file exists
	SinglePresent
	// Ambiguous means more than one file matches the canonical pattern
	Ambiguous
)

// Scan describes the backup directory's state with respect to the
// canonical pattern and the sentinel prefix
type Scan struct {
	Outcome   Outcome
	Canonical []string // canonical matches, sorted
	Staged    []string // sentinel-prefixed matches, sorted
}

// One returns the single canonical path; valid only for SinglePresent
func (s Scan) One() string {
	if len(s.Canonical) != 1 {
		return ""
	}
	return s.Canonical[0]
}

// ScanDir classifies the backup directory. A file is canonical when its
// name matches pattern and does not carry the sentinel prefix; the
// prefix must be tested separately because glob matching knows nothing
// about reserved prefixes. Only regular files count.
func ScanDir(dir, pattern string) (Scan, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Scan{}, fmt.Errorf("cannot read backup directory: %w", err)
	}

	var scan Scan
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		matched, err := filepath.Match(pattern, strings.TrimPrefix(name, SentinelPrefix))
		if err != nil {
			return Scan{}, fmt.Errorf("invalid backup pattern %q: %w", pattern, err)
		}
		if !matched {
			continue
		}
		if strings.HasPrefix(name, SentinelPrefix) {
			scan.Staged = append(scan.Staged, filepath.Join(dir, name))
		} else {
			scan.Canonical = append(scan.Canonical, filepath.Join(dir, name))
		}
	}
	sort.Strings(scan.Canonical)
	sort.Strings(scan.Staged)

	switch len(scan.Canonical) {
	case 0:
		scan.Outcome = NonePresent
	case 1:
		scan.Outcome = SinglePresent
	default:
		scan.Outcome = Ambiguous
	}
	return scan, nil
}

// SentinelPath returns the staging name for a canonical backup path
func SentinelPath(canonical string) string {
	return filepath.Join(filepath.Dir(canonical), SentinelPrefix+filepath.Base(canonical))
}
