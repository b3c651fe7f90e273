// Package toolexec runs external transformation tools as isolated child
// processes.
//
// A Runner gives every tool an explicit environment (never the parent's),
// resolves executables against its own search path, captures stdout and
// stderr into capped buffers, bounds every run with a timeout and checks the
// declared output Contract once the tool exits. Arguments are always passed
// as a discrete argv; no shell is involved.
package toolexec
