// Package registry is the cross-directory session registry: one JSON
// file per ccb session id in a global directory, so a tool holding only
// a session id (for example from a caller's environment) can resolve the
// project and provider bindings without knowing the working directory.
//
// The registry is an external keyed store with atomic put and tolerant
// get. Stale entries are allowed by contract; readers handle missing or
// invalid targets gracefully.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/pkg/paths"
	"github.com/ccbridge/ccb/util/atomicfile"
)

// ProviderBinding is the per-provider slice of a registry entry.
type ProviderBinding struct {
	SessionPath string `json:"session_path"`
	SessionID   string `json:"session_id"`
}

// Entry resolves a ccb session id back to its project and provider
// bindings.
type Entry struct {
	CCBSessionID string                     `json:"ccb_session_id"`
	CCBProjectID string                     `json:"ccb_project_id"`
	WorkDir      string                     `json:"work_dir"`
	Providers    map[string]ProviderBinding `json:"providers"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

// Registry reads and writes entries in a base directory. The zero-value
// default lives at paths.RegistryDir().
type Registry struct {
	baseDir string
}

// New returns a Registry rooted at dir, or at the default registry
// directory when dir is empty.
func New(dir string) *Registry {
	if dir == "" {
		dir = paths.RegistryDir()
	}
	return &Registry{baseDir: dir}
}

// NewSessionID mints a fresh ccb session id.
func NewSessionID() string {
	return uuid.NewString()
}

// entryPath sanitizes the session id into a file name. Session ids are
// opaque strings supplied by external callers; path separators must not
// escape the registry directory.
func (r *Registry) entryPath(sessionID string) string {
	safe := strings.Map(func(c rune) rune {
		switch c {
		case '/', '\\', ':', 0:
			return '-'
		}
		return c
	}, sessionID)
	return filepath.Join(r.baseDir, safe+".json")
}

// Register writes the entry for a session id, replacing any previous
// entry. The write is atomic; a failure leaves the old entry valid.
func (r *Registry) Register(entry *Entry) error {
	if entry.CCBSessionID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "registry entry requires a session id")
	}
	entry.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "marshal registry entry")
	}
	if err := atomicfile.WriteFile(r.entryPath(entry.CCBSessionID), data, 0644); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "write registry entry")
	}
	return nil
}

// Lookup returns the entry for a session id, or REGISTRY_NOT_FOUND for
// missing and corrupt entries alike.
func (r *Registry) Lookup(sessionID string) (*Entry, error) {
	data, err := os.ReadFile(r.entryPath(sessionID))
	if err != nil {
		return nil, errors.RegistryNotFound(sessionID)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.RegistryNotFound(sessionID)
	}
	return &entry, nil
}

// Delete removes a session's entry. Deleting a missing entry is not an
// error.
func (r *Registry) Delete(sessionID string) error {
	err := os.Remove(r.entryPath(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrCodeInternal, "delete registry entry")
	}
	return nil
}

// List returns all readable entries. Corrupt files are skipped, not
// fatal.
func (r *Registry) List() ([]*Entry, error) {
	files, err := os.ReadDir(r.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "read registry directory")
	}

	var entries []*Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.baseDir, f.Name()))
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}
