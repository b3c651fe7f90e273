package ffmpeg

import (
	"errors"
	"fmt"
	"strings"

	"thirdcoast.systems/sonicstream/internal/toolexec"
)

// Error represents an ffmpeg execution error with context.
type Error struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func newError(args []string, res *toolexec.Result, err error) error {
	e := &Error{Args: args, ExitCode: -1, Err: err}
	if res != nil {
		e.ExitCode = res.ExitCode
		e.Stderr = string(res.Stderr)
	}
	var te *toolexec.ToolError
	if errors.As(err, &te) && e.Stderr == "" {
		e.Stderr = te.Stderr
	}
	return e
}

// Error implements error.
func (e *Error) Error() string {
	// Extract just the last few lines of stderr for the error message
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	var lastLines string
	if len(lines) > 3 {
		lastLines = strings.Join(lines[len(lines)-3:], "\n")
	} else {
		lastLines = strings.Join(lines, "\n")
	}

	if lastLines != "" {
		return fmt.Sprintf("ffmpeg: %v: %s", e.Err, lastLines)
	}
	return fmt.Sprintf("ffmpeg: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// FullStderr returns the complete captured stderr output.
func (e *Error) FullStderr() string {
	return e.Stderr
}

// Command returns the command that was executed.
func (e *Error) Command() string {
	return "ffmpeg " + strings.Join(e.Args, " ")
}
