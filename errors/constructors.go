package errors

import "fmt"

// BindingNotFound reports that no active session binding exists for a
// provider in the given project directory.
func BindingNotFound(projectDir, provider string) *CCBError {
	return New(ErrCodeBindingNotFound,
		fmt.Sprintf("no active %s session bound in %s", provider, projectDir)).
		WithDetail("provider", provider).
		WithDetail("project_dir", projectDir)
}

// RegistryNotFound reports a registry lookup miss for a session id.
func RegistryNotFound(sessionID string) *CCBError {
	return New(ErrCodeRegistryNotFound,
		fmt.Sprintf("no registry entry for session %s", sessionID)).
		WithDetail("session_id", sessionID)
}

// InstanceBusy reports ordinary lock contention: another live instance
// already owns the project directory.
func InstanceBusy(projectDir string, holderPID int) *CCBError {
	e := New(ErrCodeInstanceBusy,
		fmt.Sprintf("another instance already owns %s", projectDir)).
		WithDetail("project_dir", projectDir)
	if holderPID > 0 {
		e = e.WithDetail("holder_pid", holderPID)
	}
	return e
}

// AutoCreateBlocked reports an anchor-rule violation: a nested directory
// has no project state of its own but an ancestor does, so implicitly
// creating a second control plane is refused.
func AutoCreateBlocked(dir, anchor string) *CCBError {
	return New(ErrCodeAutoCreateBlocked,
		fmt.Sprintf("refusing to initialize %s: ancestor project exists at %s", dir, anchor)).
		WithDetail("dir", dir).
		WithDetail("anchor", anchor)
}

// RequestTimeout reports that no matching reply arrived within the
// request's deadline. The request fails; the session does not.
func RequestTimeout(reqID string, timeout string) *CCBError {
	return New(ErrCodeRequestTimeout,
		fmt.Sprintf("request %s timed out after %s", reqID, timeout)).
		WithDetail("req_id", reqID).
		WithDetail("timeout", timeout)
}

// SentinelMismatch reports a completion sentinel that did not carry the
// expected request id. It is logged, never surfaced as a failure.
func SentinelMismatch(wantID, gotID string) *CCBError {
	return New(ErrCodeSentinelMismatch,
		fmt.Sprintf("completion sentinel id %q does not match outstanding request %q", gotID, wantID)).
		WithDetail("want", wantID).
		WithDetail("got", gotID)
}

// DaemonUnreachable reports that the underlying assistant process died or
// its pipe broke. Fatal to the daemon.
func DaemonUnreachable(provider string, err error) *CCBError {
	return Wrap(err, ErrCodeDaemonUnreachable,
		fmt.Sprintf("%s assistant process unreachable", provider)).
		WithDetail("provider", provider)
}

// ProviderUnknown reports a provider name with no registered adapter.
func ProviderUnknown(name string) *CCBError {
	return New(ErrCodeProviderUnknown,
		fmt.Sprintf("unknown provider %q", name)).
		WithDetail("provider", name)
}

// NoReply reports that a session transcript holds no assistant message
// yet. An expected condition for polling tools.
func NoReply(sessionPath string) *CCBError {
	return New(ErrCodeNoReply,
		fmt.Sprintf("no assistant reply in %s yet", sessionPath)).
		WithDetail("session_path", sessionPath)
}

// ConfigInvalid reports an unusable configuration file.
func ConfigInvalid(path string, err error) *CCBError {
	return Wrap(err, ErrCodeConfigInvalid,
		fmt.Sprintf("invalid configuration: %s", path)).
		WithDetail("path", path)
}
