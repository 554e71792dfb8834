package ui

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether stderr is attached to a terminal. Interactive
// progress output degrades to plain log lines when it is not.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
