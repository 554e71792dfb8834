package system

import "strings"

// MockCall records a single command invocation.
type MockCall struct {
	Name  string
	Args  []string
	Input string
}

// Line renders the call the way it would appear on a shell command line.
func (c MockCall) Line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// MockRunner implements Runner for tests. It records every invocation and
// returns configurable outputs and errors. Use NewMockRunner for a runner
// that always succeeds, or NewMockRunnerFailOnCall to fail on a specific
// invocation index.
type MockRunner struct {
	Calls  []MockCall
	Err    error
	FailOn int // fail on this call index (0-based), -1 means always fail if Err != nil

	// Outputs maps a call index (0-based) to the stdout returned by
	// RunOutput for that invocation. Missing entries yield "".
	Outputs map[int]string

	// Missing lists command names CommandExists should report as absent.
	Missing map[string]bool
}

// NewMockRunner creates a MockRunner that always succeeds.
func NewMockRunner() *MockRunner {
	return &MockRunner{FailOn: -1}
}

// NewMockRunnerFailOnCall creates a MockRunner that returns err on the n-th
// call (0-based) and succeeds on all others.
func NewMockRunnerFailOnCall(n int, err error) *MockRunner {
	return &MockRunner{FailOn: n, Err: err}
}

// NewMockRunnerWithOutput creates a MockRunner that always succeeds and
// returns the given stdout for each call index.
func NewMockRunnerWithOutput(outputs map[int]string) *MockRunner {
	return &MockRunner{FailOn: -1, Outputs: outputs}
}

// errForCall returns the error for the current call index, if any.
func (m *MockRunner) errForCall() error {
	idx := len(m.Calls) - 1
	if m.FailOn >= 0 && idx == m.FailOn {
		return m.Err
	}
	if m.FailOn < 0 && m.Err != nil {
		return m.Err
	}
	return nil
}

// outputForCall returns the stdout configured for the current call index.
func (m *MockRunner) outputForCall() string {
	if m.Outputs == nil {
		return ""
	}
	return m.Outputs[len(m.Calls)-1]
}

// Run implements Runner.
func (m *MockRunner) Run(name string, args ...string) error {
	m.Calls = append(m.Calls, MockCall{Name: name, Args: args})
	return m.errForCall()
}

// RunOutput implements Runner.
func (m *MockRunner) RunOutput(name string, args ...string) (string, error) {
	m.Calls = append(m.Calls, MockCall{Name: name, Args: args})
	return m.outputForCall(), m.errForCall()
}

// RunInput implements Runner.
func (m *MockRunner) RunInput(input string, name string, args ...string) error {
	m.Calls = append(m.Calls, MockCall{Name: name, Args: args, Input: input})
	return m.errForCall()
}

// RunAttached implements Runner.
func (m *MockRunner) RunAttached(name string, args ...string) error {
	m.Calls = append(m.Calls, MockCall{Name: name, Args: args})
	return m.errForCall()
}

// CommandExists implements Runner. Lookups are not recorded as calls so
// output indices stay aligned with executed commands.
func (m *MockRunner) CommandExists(name string) bool {
	return !m.Missing[name]
}

// CommandLines returns every recorded call rendered as a command line, in
// invocation order.
func (m *MockRunner) CommandLines() []string {
	lines := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		lines[i] = c.Line()
	}
	return lines
}
