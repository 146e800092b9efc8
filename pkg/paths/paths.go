// Package paths resolves the directories ccb reads and writes.
//
// Resolution order:
// 1. CCB_HOME (portable root) → $CCB_HOME/{data,state,run}
// 2. XDG env vars → $XDG_*_HOME/ccb
// 3. Platform defaults → ~/.local/share/ccb, ~/.local/state/ccb, etc.
//
// CCB_RUN_DIR and CCB_WORK_DIR are pure configuration inputs: they change
// where files are read and written, nothing else.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// StateDirName is the per-project local state directory.
const StateDirName = ".ccb"

func getDataHome() string {
	if ccbHome := os.Getenv("CCB_HOME"); ccbHome != "" {
		return filepath.Join(ccbHome, "data")
	}
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return xdgDataHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "share")
	}
	return ""
}

func getStateHome() string {
	if ccbHome := os.Getenv("CCB_HOME"); ccbHome != "" {
		return filepath.Join(ccbHome, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// DataDir returns the ccb data directory. Used for the global session
// registry.
func DataDir() string {
	base := getDataHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "ccb")
}

// StateDir returns the ccb state directory. Used for runtime state that
// must survive reboots poorly (daemon state is regenerable).
func StateDir() string {
	base := getStateHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "ccb")
}

// RegistryDir returns the global session registry directory, one JSON
// file per ccb session id.
func RegistryDir() string {
	data := DataDir()
	if data == "" {
		return ""
	}
	return filepath.Join(data, "registry")
}

// RunDir returns the directory for daemon state files and sockets.
// CCB_RUN_DIR overrides; XDG_RUNTIME_DIR is preferred when present;
// otherwise the state dir serves (macOS has no runtime dir).
func RunDir() string {
	if dir := os.Getenv("CCB_RUN_DIR"); dir != "" {
		return dir
	}
	if ccbHome := os.Getenv("CCB_HOME"); ccbHome != "" {
		return filepath.Join(ccbHome, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "ccb")
	}
	return StateDir()
}

// WorkDir returns the effective working directory: CCB_WORK_DIR when set,
// the process working directory otherwise.
func WorkDir() (string, error) {
	if dir := os.Getenv("CCB_WORK_DIR"); dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// ProjectStateDir returns the local state directory for a project.
func ProjectStateDir(projectDir string) string {
	return filepath.Join(projectDir, StateDirName)
}

// ProviderRoot returns the session storage root override for a provider:
// CCB_<PROVIDER>_ROOT first, CCB_PROVIDER_ROOT second, "" when unset (the
// adapter supplies its native default).
func ProviderRoot(provider string) string {
	key := "CCB_" + strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_ROOT"
	if dir := os.Getenv(key); dir != "" {
		return dir
	}
	return os.Getenv("CCB_PROVIDER_ROOT")
}

// EnsureDirs creates the global ccb directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{DataDir(), StateDir(), RegistryDir(), RunDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
