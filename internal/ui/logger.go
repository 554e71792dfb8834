package ui

import (
	"fmt"

	"github.com/fatih/color"
)

// Logger provides color-coded, tag-prefixed logging on stderr
type Logger struct {
	Verbose bool
	Quiet   bool

	info    *color.Color
	success *color.Color
	warning *color.Color
	failure *color.Color
	debug   *color.Color
}

// NewLogger creates a new logger. Color drops automatically when not
// writing to a terminal; noColor forces it off.
func NewLogger(verbose, quiet, noColor bool) *Logger {
	l := &Logger{
		Verbose: verbose,
		Quiet:   quiet,
		info:    color.New(color.FgBlue),
		success: color.New(color.FgGreen),
		warning: color.New(color.FgYellow),
		failure: color.New(color.FgRed),
		debug:   color.New(color.FgCyan),
	}
	if noColor {
		for _, c := range []*color.Color{l.info, l.success, l.warning, l.failure, l.debug} {
			c.DisableColor()
		}
	}
	return l
}

func (l *Logger) log(c *color.Color, tag, format string, args ...interface{}) {
	c.Fprintf(color.Error, "%s %s\n", tag, fmt.Sprintf(format, args...))
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.Quiet {
		return
	}
	l.log(l.info, "[INFO]", format, args...)
}

// Success logs a success message
func (l *Logger) Success(format string, args ...interface{}) {
	if l.Quiet {
		return
	}
	l.log(l.success, "[SUCCESS]", format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.log(l.warning, "[WARNING]", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(l.failure, "[ERROR]", format, args...)
}

// Debug logs a debug message (only if verbose is enabled)
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.Verbose {
		return
	}
	l.log(l.debug, "[DEBUG]", format, args...)
}
