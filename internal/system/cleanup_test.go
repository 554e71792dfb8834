package system

import (
	"errors"
	"strings"
	"testing"
)

func TestCleanupStackOrder(t *testing.T) {
	stack := NewCleanupStack()

	var order []string
	stack.Add("first", func() error {
		order = append(order, "first")
		return nil
	})
	stack.Add("second", func() error {
		order = append(order, "second")
		return nil
	})
	stack.Add("third", func() error {
		order = append(order, "third")
		return nil
	})

	if err := stack.Execute(); err != nil {
		t.Fatalf("Execute: unexpected error: %v", err)
	}

	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("ran %d cleanups, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestCleanupStackCollectsErrors(t *testing.T) {
	stack := NewCleanupStack()

	var ran []string
	stack.Add("release device", func() error {
		ran = append(ran, "release device")
		return nil
	})
	stack.Add("unmount root", func() error {
		ran = append(ran, "unmount root")
		return errors.New("target busy")
	})

	err := stack.Execute()
	if err == nil {
		t.Fatal("Execute: expected error, got nil")
	}
	if !strings.Contains(err.Error(), "unmount root") {
		t.Errorf("error %q does not name the failing step", err)
	}
	// A failing step must not stop the unwind.
	if len(ran) != 2 {
		t.Errorf("ran %d cleanups, want 2 (unwind must continue past failures)", len(ran))
	}
}

func TestCleanupStackClear(t *testing.T) {
	stack := NewCleanupStack()

	ran := false
	stack.Add("never", func() error {
		ran = true
		return nil
	})
	stack.Clear()

	if err := stack.Execute(); err != nil {
		t.Fatalf("Execute after Clear: unexpected error: %v", err)
	}
	if ran {
		t.Error("cleanup ran after Clear")
	}
	if stack.Len() != 0 {
		t.Errorf("Len = %d after Clear, want 0", stack.Len())
	}
}

func TestCleanupStackExecuteTwice(t *testing.T) {
	stack := NewCleanupStack()

	count := 0
	stack.Add("once", func() error {
		count++
		return nil
	})

	if err := stack.Execute(); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if err := stack.Execute(); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if count != 1 {
		t.Errorf("cleanup ran %d times, want 1", count)
	}
}
