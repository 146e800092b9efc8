// Package binding manages the per-project, per-provider pointer to "the
// active session": a small JSON record in the project's .ccb directory,
// always published atomically so lookup tools never see a torn write.
package binding

import "time"

// Binding points a project at one provider's active session.
//
// Ownership: the project directory's local state area. One writer at a
// time (whichever process (re)binds); readers tolerate concurrent
// rewrites because the file is replaced atomically.
type Binding struct {
	Provider    string    `json:"provider"`
	SessionID   string    `json:"session_id"`
	SessionPath string    `json:"session_path"`
	Active      bool      `json:"active"`
	WorkDir     string    `json:"work_dir,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Previous binding, kept when a session switch overwrites this record.
	OldSessionID   string `json:"old_session_id,omitempty"`
	OldSessionPath string `json:"old_session_path,omitempty"`
}
