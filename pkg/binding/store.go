package binding

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/pkg/paths"
	"github.com/ccbridge/ccb/util/atomicfile"
)

// FilePath returns the binding file location for a (project, provider)
// pair.
func FilePath(projectDir, provider string) string {
	return filepath.Join(paths.ProjectStateDir(projectDir), fmt.Sprintf("%s-session.json", provider))
}

// Bind atomically writes the binding for (projectDir, provider),
// overwriting any prior binding. Last writer wins; there is no merge.
// When the session actually changes, the superseded ids are carried in
// the old_* fields.
func Bind(projectDir, provider, sessionID, sessionPath string) (*Binding, error) {
	b := &Binding{
		Provider:    provider,
		SessionID:   sessionID,
		SessionPath: sessionPath,
		Active:      true,
		WorkDir:     projectDir,
		UpdatedAt:   time.Now(),
	}

	if prev, err := Resolve(projectDir, provider); err == nil {
		if prev.SessionID != sessionID && prev.SessionID != "" {
			b.OldSessionID = prev.SessionID
		}
		if prev.SessionPath != sessionPath && prev.SessionPath != "" {
			b.OldSessionPath = prev.SessionPath
		}
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "marshal binding")
	}
	if err := atomicfile.WriteFile(FilePath(projectDir, provider), data, 0644); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "write binding")
	}
	return b, nil
}

// Resolve reads the binding for (projectDir, provider). Returns
// BINDING_NOT_FOUND when no binding exists, the file is unreadable, or
// the binding is inactive. Read-only; tolerates concurrent writers.
func Resolve(projectDir, provider string) (*Binding, error) {
	data, err := os.ReadFile(FilePath(projectDir, provider))
	if err != nil {
		return nil, errors.BindingNotFound(projectDir, provider)
	}

	var b Binding
	if err := json.Unmarshal(data, &b); err != nil {
		// A corrupt binding is indistinguishable from no binding for
		// callers; they rebind rather than crash.
		return nil, errors.BindingNotFound(projectDir, provider)
	}
	if !b.Active {
		return nil, errors.BindingNotFound(projectDir, provider)
	}
	if b.Provider == "" {
		b.Provider = provider
	}
	return &b, nil
}

// Deactivate marks the binding inactive without discarding the session
// pointer. Missing bindings are a no-op.
func Deactivate(projectDir, provider string) error {
	path := FilePath(projectDir, provider)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "read binding")
	}

	var b Binding
	if err := json.Unmarshal(data, &b); err != nil {
		return nil
	}
	b.Active = false
	b.UpdatedAt = time.Now()

	out, err := json.MarshalIndent(&b, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "marshal binding")
	}
	return atomicfile.WriteFile(path, out, 0644)
}
