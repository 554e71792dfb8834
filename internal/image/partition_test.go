package image

import (
	"errors"
	"os/exec"
	"reflect"
	"strconv"
	"testing"

	"github.com/lzkelley/bkup-rpimage/internal/system"
)

const (
	testFsUUID = "f1e2d3c4-5a6b-4c7d-8e9f-a0b1c2d3e4f5"
	testPtUUID = "9af788a2"
)

// exitError runs a real process so the returned error is a genuine
// *exec.ExitError carrying the given code.
func exitError(t *testing.T, code int) error {
	t.Helper()
	err := exec.Command("sh", "-c", "exit "+strconv.Itoa(code)).Run()
	if err == nil {
		t.Fatalf("expected exit %d to produce an error", code)
	}
	return err
}

func TestCloneTable(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		dump := "label: dos\n/dev/mmcblk0p1 : start=8192, size=524288, type=c\n"
		mock := system.NewMockRunnerWithOutput(map[int]string{1: dump})
		cloner := NewCloner(mock, testLogger())

		if err := cloner.CloneTable("/dev/mmcblk0", testBinding()); err != nil {
			t.Fatalf("CloneTable: unexpected error: %v", err)
		}

		want := []string{
			"parted -s /dev/loop0 mklabel msdos",
			"sfdisk -d /dev/mmcblk0",
			"sfdisk --force /dev/loop0",
			"partprobe /dev/loop0",
			"udevadm settle",
			"mkfs.vfat -F 32 /dev/loop0p1",
			"mkfs.ext4 -q /dev/loop0p2",
		}
		if got := mock.CommandLines(); !reflect.DeepEqual(got, want) {
			t.Errorf("calls = %v, want %v", got, want)
		}

		// The dumped table must be fed back on stdin, not as an argument.
		if mock.Calls[2].Input != dump {
			t.Errorf("sfdisk stdin = %q, want the dumped table", mock.Calls[2].Input)
		}
	})

	t.Run("DumpFailure", func(t *testing.T) {
		mock := system.NewMockRunnerFailOnCall(1, errors.New("no such device"))
		cloner := NewCloner(mock, testLogger())

		err := cloner.CloneTable("/dev/mmcblk0", testBinding())
		if err == nil {
			t.Fatal("expected dump failure to surface")
		}
		if len(mock.Calls) != 2 {
			t.Errorf("calls = %v, want to stop after the failed dump", mock.CommandLines())
		}
	})
}

func TestCloneIdentity(t *testing.T) {
	outputs := map[int]string{
		0: testFsUUID + "\n",
		1: testPtUUID + "\n",
	}

	t.Run("Success", func(t *testing.T) {
		mock := system.NewMockRunnerWithOutput(outputs)
		cloner := NewCloner(mock, testLogger())

		if err := cloner.CloneIdentity("/dev/mmcblk0", testBinding()); err != nil {
			t.Fatalf("CloneIdentity: unexpected error: %v", err)
		}

		want := []string{
			"blkid -s UUID -o value /dev/mmcblk0p2",
			"blkid -s PTUUID -o value /dev/mmcblk0",
			"e2fsck -f -y /dev/loop0p2",
			"tune2fs -U " + testFsUUID + " /dev/loop0p2",
			"sfdisk --disk-id /dev/loop0 0x" + testPtUUID,
		}
		if got := mock.CommandLines(); !reflect.DeepEqual(got, want) {
			t.Errorf("calls = %v, want %v", got, want)
		}

		// tune2fs asks for confirmation when the filesystem was just checked.
		if mock.Calls[3].Input != "y\n" {
			t.Errorf("tune2fs stdin = %q, want confirmation", mock.Calls[3].Input)
		}
	})

	t.Run("Repeatable", func(t *testing.T) {
		first := system.NewMockRunnerWithOutput(outputs)
		second := system.NewMockRunnerWithOutput(outputs)
		cloner := NewCloner(first, testLogger())
		if err := cloner.CloneIdentity("/dev/mmcblk0", testBinding()); err != nil {
			t.Fatal(err)
		}
		cloner = NewCloner(second, testLogger())
		if err := cloner.CloneIdentity("/dev/mmcblk0", testBinding()); err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first.CommandLines(), second.CommandLines()) {
			t.Error("re-running identity cloning issued different commands")
		}
	})

	t.Run("RepairedFilesystemTolerated", func(t *testing.T) {
		mock := system.NewMockRunnerWithOutput(outputs)
		mock.FailOn = 2 // e2fsck
		mock.Err = exitError(t, 1)
		cloner := NewCloner(mock, testLogger())

		if err := cloner.CloneIdentity("/dev/mmcblk0", testBinding()); err != nil {
			t.Fatalf("exit 1 from e2fsck should be tolerated, got %v", err)
		}
		if len(mock.Calls) != 5 {
			t.Errorf("calls = %v, want the full sequence", mock.CommandLines())
		}
	})

	t.Run("UnfixableFilesystemFatal", func(t *testing.T) {
		mock := system.NewMockRunnerWithOutput(outputs)
		mock.FailOn = 2
		mock.Err = exitError(t, 8) // operational error
		cloner := NewCloner(mock, testLogger())

		if err := cloner.CloneIdentity("/dev/mmcblk0", testBinding()); err == nil {
			t.Fatal("expected e2fsck exit 8 to be fatal")
		}
		if len(mock.Calls) != 3 {
			t.Errorf("calls = %v, want to stop after e2fsck", mock.CommandLines())
		}
	})

	t.Run("MalformedUUID", func(t *testing.T) {
		mock := system.NewMockRunnerWithOutput(map[int]string{0: "not-a-uuid\n"})
		cloner := NewCloner(mock, testLogger())

		if err := cloner.CloneIdentity("/dev/mmcblk0", testBinding()); err == nil {
			t.Fatal("expected malformed UUID to be rejected")
		}
		if len(mock.Calls) != 1 {
			t.Errorf("calls = %v, want to stop before touching the image", mock.CommandLines())
		}
	})

	t.Run("MalformedDiskID", func(t *testing.T) {
		mock := system.NewMockRunnerWithOutput(map[int]string{
			0: testFsUUID + "\n",
			1: "0xnope\n",
		})
		cloner := NewCloner(mock, testLogger())

		if err := cloner.CloneIdentity("/dev/mmcblk0", testBinding()); err == nil {
			t.Fatal("expected malformed disk id to be rejected")
		}
	})

	t.Run("EmptyBlkid", func(t *testing.T) {
		mock := system.NewMockRunner()
		cloner := NewCloner(mock, testLogger())

		if err := cloner.CloneIdentity("/dev/mmcblk0", testBinding()); err == nil {
			t.Fatal("expected empty blkid output to be rejected")
		}
	})
}

func TestIsDiskID(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"9af788a2", true},
		{"DEADBEEF", true},
		{"00000000", true},
		{"9af788a", false},
		{"9af788a2f", false},
		{"9af788g2", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isDiskID(tc.in); got != tc.want {
			t.Errorf("isDiskID(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
