package render

import (
	"errors"
	"strings"
)

// Process errors.
var (
	// ErrRendererFailed matches every ToolError, whatever the program.
	ErrRendererFailed = errors.New("external tool failed")

	// ErrNoPages is returned when a rasterizer exits cleanly without
	// producing a single page image.
	ErrNoPages = errors.New("produced no pages")

	// ErrTimeout is returned when an external program exceeds its deadline.
	// Each invocation has its own deadline; the batch as a whole has none.
	ErrTimeout = errors.New("timed out")

	// ErrEmptyCommand is returned when a tool is configured with an empty
	// program name.
	ErrEmptyCommand = errors.New("empty command")
)

// ToolError reports a failed invocation of an external program.
// Its message reads "<tool> failed: <cause>", which is what ends up in the
// report for the affected document.
type ToolError struct {
	// Tool is the base name of the program, e.g. "pdftoppm".
	Tool string

	// Err is the underlying cause, possibly wrapping ErrTimeout.
	Err error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return e.Tool + " failed: " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// Is reports ErrRendererFailed as a match so that callers need not know
// about the concrete type.
func (e *ToolError) Is(target error) bool {
	return target == ErrRendererFailed
}

// maxStderr caps how much diagnostic output is kept in an error message.
const maxStderr = 512

// trimStderr keeps the tail of a program's stderr, where the actual error
// usually is.
func trimStderr(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxStderr {
		return s
	}
	return "..." + s[len(s)-maxStderr:]
}
