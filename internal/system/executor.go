package system

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrMissingDependency indicates a required external tool is not in PATH
var ErrMissingDependency = errors.New("missing required commands")

// Runner abstracts execution of external commands so device plumbing
// can be exercised in tests without touching the kernel
type Runner interface {
	Run(name string, args ...string) error
	RunOutput(name string, args ...string) (string, error)
	RunInput(input string, name string, args ...string) error
	RunAttached(name string, args ...string) error
	CommandExists(name string) bool
}

// Executor handles execution of external commands
type Executor struct {
	debug bool
}

// NewExecutor creates a new executor
func NewExecutor(debug bool) *Executor {
	return &Executor{debug: debug}
}

// Run executes a command and discards output
func (e *Executor) Run(name string, args ...string) error {
	_, err := e.RunOutput(name, args...)
	return err
}

// RunOutput executes a command and returns stdout
func (e *Executor) RunOutput(name string, args ...string) (string, error) {
	return e.runCmd(exec.Command(name, args...))
}

// RunInput executes a command feeding input on stdin
func (e *Executor) RunInput(input string, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(input)
	_, err := e.runCmd(cmd)
	return err
}

// RunAttached executes a command with stdout/stderr passed through to the
// terminal, for long-running tools that report their own progress (rsync,
// filesystem checks)
func (e *Executor) RunAttached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if e.debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] Executing: %s\n", cmd.String())
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", cmd.Args[0], err)
	}
	return nil
}

func (e *Executor) runCmd(cmd *exec.Cmd) (string, error) {
	if e.debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] Executing: %s\n", cmd.String())
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return "", fmt.Errorf("%s failed: %w\nStderr: %s",
			cmd.Args[0], err, stderr.String())
	}

	return stdout.String(), nil
}

// CommandExists checks if a command is available in PATH
func (e *Executor) CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// CheckDependencies verifies required commands are available
func CheckDependencies(r Runner, deps ...string) error {
	var missing []string
	for _, dep := range deps {
		if !r.CommandExists(dep) {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingDependency,
			strings.Join(missing, ", "))
	}
	return nil
}
