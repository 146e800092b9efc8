// Package state manages a request daemon's on-disk state file: one JSON
// record per (project, provider) daemon in the run directory, written
// only by the owning daemon and polled read-only by status and cleanup
// tooling. Readers must tolerate the file being deleted mid-read.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ccbridge/ccb/pkg/paths"
	"github.com/ccbridge/ccb/pkg/process"
	"github.com/ccbridge/ccb/util/atomicfile"
)

// DaemonState describes one live daemon instance.
type DaemonState struct {
	PID        int       `json:"pid"`
	ParentPID  int       `json:"parent_pid"`
	Managed    bool      `json:"managed"`
	WorkDir    string    `json:"work_dir"`
	Provider   string    `json:"provider"`
	QueueDepth int       `json:"queue_depth"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FilePath returns the state file for a (project key, provider) daemon.
func FilePath(runDir, projectKey, provider string) string {
	return filepath.Join(runDir, fmt.Sprintf("askd-%s-%s.json", shortKey(projectKey), provider))
}

// SocketPath returns the unix socket for a (project key, provider)
// daemon.
func SocketPath(runDir, projectKey, provider string) string {
	return filepath.Join(runDir, fmt.Sprintf("askd-%s-%s.sock", shortKey(projectKey), provider))
}

// LockPath returns the flock file guarding a daemon's scope.
func LockPath(runDir, projectKey, provider string) string {
	return filepath.Join(runDir, fmt.Sprintf("askd-%s-%s.lock", shortKey(projectKey), provider))
}

func shortKey(projectKey string) string {
	if len(projectKey) > 12 {
		return projectKey[:12]
	}
	return projectKey
}

// Store reads and writes one daemon's state file.
type Store struct {
	path string
}

// NewStore returns a Store for the given (project key, provider) in the
// run directory.
func NewStore(runDir, projectKey, provider string) *Store {
	return &Store{path: FilePath(runDir, projectKey, provider)}
}

// Path returns the underlying file path.
func (s *Store) Path() string { return s.path }

// Write atomically publishes the state.
func (s *Store) Write(st *DaemonState) error {
	st.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(s.path, data, 0644)
}

// Read returns the current state, or (nil, nil) when the file is absent
// or unreadable: a daemon that is gone, not an error.
func (s *Store) Read() (*DaemonState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, nil
	}
	var st DaemonState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, nil
	}
	return &st, nil
}

// Delete removes the state file. Missing files are fine.
func (s *Store) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsLive reports whether the state describes a daemon whose process is
// still running.
func (st *DaemonState) IsLive() bool {
	return st != nil && process.IsAlive(st.PID)
}

// ListStates returns all daemon states in the run directory, skipping
// unreadable files (a daemon may delete its state mid-scan).
func ListStates(runDir string) []*DaemonState {
	if runDir == "" {
		runDir = paths.RunDir()
	}
	files, err := os.ReadDir(runDir)
	if err != nil {
		return nil
	}
	var states []*DaemonState
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasPrefix(name, "askd-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(runDir, name))
		if err != nil {
			continue
		}
		var st DaemonState
		if err := json.Unmarshal(data, &st); err != nil {
			continue
		}
		states = append(states, &st)
	}
	return states
}
