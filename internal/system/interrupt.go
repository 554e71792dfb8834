package system

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// ErrInterrupted indicates a cancellation signal arrived and the in-flight
// operation was unwound
var ErrInterrupted = errors.New("interrupted")

// InterruptGuard converts SIGINT/SIGTERM into a flag that multi-stage
// operations poll between external calls. A signal never preempts a stage;
// it takes effect at the next Checkpoint, after the current external call
// has returned.
type InterruptGuard struct {
	interrupted atomic.Bool
	sigs        chan os.Signal
	done        chan struct{}
	stopOnce    sync.Once
}

// NewInterruptGuard installs the signal handler
func NewInterruptGuard() *InterruptGuard {
	g := &InterruptGuard{
		sigs: make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
	signal.Notify(g.sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		for {
			select {
			case <-g.sigs:
				g.interrupted.Store(true)
			case <-g.done:
				return
			}
		}
	}()
	return g
}

// Interrupted reports whether a cancellation signal has arrived
func (g *InterruptGuard) Interrupted() bool {
	return g.interrupted.Load()
}

// Checkpoint returns ErrInterrupted if a signal arrived, naming the stage
// that was about to start
func (g *InterruptGuard) Checkpoint(stage string) error {
	if g.Interrupted() {
		return fmt.Errorf("%w before %s", ErrInterrupted, stage)
	}
	return nil
}

// Stop uninstalls the handler; subsequent signals get default behavior
func (g *InterruptGuard) Stop() {
	g.stopOnce.Do(func() {
		signal.Stop(g.sigs)
		close(g.done)
	})
}
