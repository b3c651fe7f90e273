//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package toolexec

import "os/exec"

// isolateProcessGroup falls back to exec.CommandContext's default of killing
// only the direct child.
func isolateProcessGroup(cmd *exec.Cmd) {}
