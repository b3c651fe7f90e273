package toolexec

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxDiagnosticBytes caps the stderr excerpt carried by a ToolError.
const maxDiagnosticBytes = 2048

// ToolError describes a failed tool run. Kind is one of the faults markers
// (ToolFailed, ToolTimedOut, OutputMissing, OutputMalformed), so callers can
// classify it with errors.Is.
type ToolError struct {
	Kind     error
	Tool     string
	Args     []string
	ExitCode int
	// Stderr holds the tail of the captured error stream.
	Stderr  string
	Missing []string
	Cause   error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "toolexec: %s: %v", e.Tool, e.Kind)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.Missing, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	return b.String()
}

// Unwrap exposes both the classification marker and the underlying cause.
func (e *ToolError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Command returns the argv that was executed.
func (e *ToolError) Command() string {
	return strings.TrimSpace(e.Tool + " " + strings.Join(e.Args, " "))
}

// stderrTail extracts the last few lines of stderr for an error message,
// bounded to maxDiagnosticBytes.
func stderrTail(stderr []byte) string {
	lines := strings.Split(strings.TrimSpace(string(stderr)), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	tail := strings.TrimSpace(strings.Join(lines, "\n"))
	if len(tail) > maxDiagnosticBytes {
		cut := len(tail) - maxDiagnosticBytes
		for cut < len(tail) && !utf8.RuneStart(tail[cut]) {
			cut++
		}
		tail = "…" + tail[cut:]
	}
	return tail
}
