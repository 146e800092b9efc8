// Package lock provides the single-instance guard for a project
// directory. It uses an OS advisory flock tied to a file descriptor, not
// a marker-file convention, so a crashed holder's lock is released by
// the kernel automatically.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/pkg/paths"
	"github.com/ccbridge/ccb/pkg/project"
)

// LockFileName is the lock file inside a project's .ccb directory.
const LockFileName = "instance.lock"

// Lock is a held single-instance lock. Release it exactly once.
type Lock struct {
	Path string
	file *os.File
}

// Acquire takes the exclusive instance lock for projectDir.
//
// Failure modes are distinct so callers can emit different diagnostics:
//   - INSTANCE_BUSY: another live process holds the lock.
//   - AUTO_CREATE_BLOCKED: projectDir has no .ccb state yet but an
//     ancestor directory does (anchor rule); initializing a second,
//     divergent control plane for the same tree is refused.
func Acquire(projectDir string) (*Lock, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "resolve project directory")
	}

	stateDir := paths.ProjectStateDir(abs)
	if _, statErr := os.Stat(stateDir); os.IsNotExist(statErr) {
		if anchor := project.FindAnchor(filepath.Dir(abs)); anchor != "" {
			return nil, errors.AutoCreateBlocked(abs, anchor)
		}
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "create project state directory")
		}
	}

	path := filepath.Join(stateDir, LockFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "open lock file")
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readHolderPID(file)
		file.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errors.InstanceBusy(abs, holder)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "flock")
	}

	// The pid inside the file is advisory, for diagnostics only; the
	// flock is the actual mutual exclusion.
	if err := file.Truncate(0); err == nil {
		_, _ = file.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0)
		_ = file.Sync()
	}

	return &Lock{Path: path, file: file}, nil
}

// AcquireFile takes an exclusive flock on an arbitrary path, creating
// parent directories as needed. Used by daemons to guard their own scope
// (one daemon per project/provider pair in the run directory). The same
// INSTANCE_BUSY semantics apply; the anchor rule does not.
func AcquireFile(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "create lock directory")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "open lock file")
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readHolderPID(file)
		file.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errors.InstanceBusy(path, holder)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "flock")
	}
	if err := file.Truncate(0); err == nil {
		_, _ = file.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0)
		_ = file.Sync()
	}
	return &Lock{Path: path, file: file}, nil
}

// Release drops the lock and closes the descriptor.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}

func readHolderPID(file *os.File) int {
	buf := make([]byte, 32)
	n, err := file.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return 0
	}
	return pid
}
