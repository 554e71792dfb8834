package image

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/lzkelley/bkup-rpimage/internal/system"
)

func testSession(t *testing.T, mounted bool) *MountSession {
	t.Helper()
	setupMockMounts(t, nil, mounted)
	mounter := NewMounter(system.NewMockRunner(), testLogger())
	return mounter.Resume(testBinding(), "/mnt/sd.img", false)
}

func TestSync(t *testing.T) {
	t.Run("FullPair", func(t *testing.T) {
		sess := testSession(t, true)
		mock := system.NewMockRunner()
		engine := NewSyncEngine(mock, testLogger())

		if err := engine.Sync(sess, ""); err != nil {
			t.Fatalf("Sync: unexpected error: %v", err)
		}

		want := []string{
			"rsync -aHAXx --delete --numeric-ids / /mnt/sd.img/",
			"rsync -rtD --modify-window=1 --delete /boot/ /mnt/sd.img/boot/",
		}
		if got := mock.CommandLines(); !reflect.DeepEqual(got, want) {
			t.Errorf("calls = %v, want %v", got, want)
		}
	})

	t.Run("WithLogFile", func(t *testing.T) {
		sess := testSession(t, true)
		mock := system.NewMockRunner()
		engine := NewSyncEngine(mock, testLogger())

		if err := engine.Sync(sess, "/backups/sd.img-20260101000000.log"); err != nil {
			t.Fatal(err)
		}

		for i, call := range mock.Calls {
			found := false
			for _, arg := range call.Args {
				if arg == "--log-file=/backups/sd.img-20260101000000.log" {
					found = true
				}
			}
			if !found {
				t.Errorf("call %d missing --log-file: %v", i, call.Line())
			}
		}
	})

	t.Run("SkipsUnmountedSession", func(t *testing.T) {
		sess := testSession(t, false)
		mock := system.NewMockRunner()
		engine := NewSyncEngine(mock, testLogger())

		if err := engine.Sync(sess, ""); err != nil {
			t.Fatalf("Sync on an unmounted session must not fail: %v", err)
		}
		if len(mock.Calls) != 0 {
			t.Errorf("unexpected commands: %v", mock.CommandLines())
		}
	})

	t.Run("RootSyncFailure", func(t *testing.T) {
		sess := testSession(t, true)
		mock := system.NewMockRunnerFailOnCall(0, errors.New("rsync exited 23"))
		engine := NewSyncEngine(mock, testLogger())

		err := engine.Sync(sess, "")
		if err == nil {
			t.Fatal("expected root sync failure to surface")
		}
		if len(mock.Calls) != 1 {
			t.Errorf("boot sync should not run after a failed root sync: %v", mock.CommandLines())
		}
	})
}

func TestDefaultLogPath(t *testing.T) {
	now := time.Date(2026, 8, 25, 14, 30, 5, 0, time.UTC)
	got := DefaultLogPath("/backups/sd.img", now)
	want := "/backups/sd.img-20260825143005.log"
	if got != want {
		t.Errorf("DefaultLogPath = %q, want %q", got, want)
	}
}
