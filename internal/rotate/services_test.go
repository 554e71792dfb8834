package rotate

import (
	"errors"
	"reflect"
	"testing"

	"github.com/lzkelley/bkup-rpimage/internal/system"
)

func TestSystemdController(t *testing.T) {
	t.Run("Commands", func(t *testing.T) {
		mock := system.NewMockRunner()
		ctl := NewSystemdController(mock)

		if err := ctl.Stop("smbd"); err != nil {
			t.Fatal(err)
		}
		if err := ctl.Start("smbd"); err != nil {
			t.Fatal(err)
		}

		want := []string{"systemctl stop smbd", "systemctl start smbd"}
		if got := mock.CommandLines(); !reflect.DeepEqual(got, want) {
			t.Errorf("calls = %v, want %v", got, want)
		}
	})

	t.Run("Failure", func(t *testing.T) {
		mock := system.NewMockRunnerFailOnCall(0, errors.New("unit not loaded"))
		ctl := NewSystemdController(mock)

		if err := ctl.Stop("ghost"); err == nil {
			t.Fatal("expected stop failure to surface")
		}
	})
}
