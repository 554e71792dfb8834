package rotate

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func populateDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestScanDir(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		scan, err := ScanDir(populateDir(t), "*.img")
		if err != nil {
			t.Fatal(err)
		}
		if scan.Outcome != NonePresent {
			t.Errorf("outcome = %v, want NonePresent", scan.Outcome)
		}
	})

	t.Run("Single", func(t *testing.T) {
		dir := populateDir(t, "pi.img", "notes.txt")
		scan, err := ScanDir(dir, "*.img")
		if err != nil {
			t.Fatal(err)
		}
		if scan.Outcome != SinglePresent {
			t.Fatalf("outcome = %v, want SinglePresent", scan.Outcome)
		}
		if scan.One() != filepath.Join(dir, "pi.img") {
			t.Errorf("One() = %q", scan.One())
		}
	})

	t.Run("Many", func(t *testing.T) {
		dir := populateDir(t, "pi.img", "old.img")
		scan, err := ScanDir(dir, "*.img")
		if err != nil {
			t.Fatal(err)
		}
		if scan.Outcome != Ambiguous {
			t.Fatalf("outcome = %v, want Ambiguous", scan.Outcome)
		}
		want := []string{filepath.Join(dir, "old.img"), filepath.Join(dir, "pi.img")}
		if !reflect.DeepEqual(scan.Canonical, want) {
			t.Errorf("Canonical = %v, want %v", scan.Canonical, want)
		}
		if scan.One() != "" {
			t.Error("One() must be empty for Ambiguous")
		}
	})

	t.Run("SentinelNotCanonical", func(t *testing.T) {
		dir := populateDir(t, "pending-pi.img")
		scan, err := ScanDir(dir, "*.img")
		if err != nil {
			t.Fatal(err)
		}
		if scan.Outcome != NonePresent {
			t.Errorf("outcome = %v, want NonePresent", scan.Outcome)
		}
		want := []string{filepath.Join(dir, "pending-pi.img")}
		if !reflect.DeepEqual(scan.Staged, want) {
			t.Errorf("Staged = %v, want %v", scan.Staged, want)
		}
	})

	t.Run("SentinelWithAnchoredPattern", func(t *testing.T) {
		dir := populateDir(t, "backup_pi.img", "pending-backup_pi.img")
		scan, err := ScanDir(dir, "backup_*.img")
		if err != nil {
			t.Fatal(err)
		}
		if scan.Outcome != SinglePresent {
			t.Errorf("outcome = %v, want SinglePresent", scan.Outcome)
		}
		if len(scan.Staged) != 1 {
			t.Errorf("Staged = %v, want the sentinel recognized", scan.Staged)
		}
	})

	t.Run("IgnoresDirectories", func(t *testing.T) {
		dir := populateDir(t)
		if err := os.Mkdir(filepath.Join(dir, "archive.img"), 0755); err != nil {
			t.Fatal(err)
		}
		scan, err := ScanDir(dir, "*.img")
		if err != nil {
			t.Fatal(err)
		}
		if scan.Outcome != NonePresent {
			t.Errorf("outcome = %v, want NonePresent", scan.Outcome)
		}
	})

	t.Run("MissingDir", func(t *testing.T) {
		if _, err := ScanDir(filepath.Join(t.TempDir(), "absent"), "*.img"); err == nil {
			t.Fatal("expected missing directory to fail")
		}
	})

	t.Run("BadPattern", func(t *testing.T) {
		dir := populateDir(t, "pi.img")
		if _, err := ScanDir(dir, "[.img"); err == nil {
			t.Fatal("expected malformed pattern to fail")
		}
	})
}

func TestSentinelPath(t *testing.T) {
	got := SentinelPath("/backups/pi.img")
	if got != "/backups/pending-pi.img" {
		t.Errorf("SentinelPath = %q", got)
	}
}
