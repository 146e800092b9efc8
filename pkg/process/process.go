// Package process provides OS process liveness probes.
package process

import (
	"os"
	"syscall"
)

// IsAlive checks if a process with the given PID is still running.
// On Unix, sending signal 0 checks for existence without delivering a
// signal: nil means alive, EPERM means alive but owned by someone else,
// ESRCH means gone.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		// Does not happen on Unix; FindProcess always succeeds.
		return false
	}

	err = proc.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}
