package cli

import (
	"fmt"
	"os"

	"github.com/ccbridge/ccb/errors"
)

// Exit codes. Expected operational failures (nothing bound yet, lock
// busy, request timed out) are distinguished from internal errors so
// scripts can branch on them.
const (
	ExitOK       = 0
	ExitInternal = 1
	ExitExpected = 2
)

// ErrorHandler prints user-facing error messages and resolves exit
// codes.
type ErrorHandler struct {
	Verbose bool
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{Verbose: verbose}
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.IsExpected(err) {
		return ExitExpected
	}
	return ExitInternal
}

// Handle prints a user-friendly message for err and returns it.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeBindingNotFound:
		if ccbErr, ok := err.(*errors.CCBError); ok {
			fmt.Fprintf(os.Stderr, "No active %v session bound here.\n", ccbErr.Details["provider"])
			fmt.Fprintf(os.Stderr, "Run 'ccb bind <provider>' once the assistant has a session.\n")
			return err
		}

	case errors.ErrCodeInstanceBusy:
		if ccbErr, ok := err.(*errors.CCBError); ok {
			fmt.Fprintf(os.Stderr, "Another instance already owns %v", ccbErr.Details["project_dir"])
			if pid, ok := ccbErr.Details["holder_pid"]; ok {
				fmt.Fprintf(os.Stderr, " (pid %v)", pid)
			}
			fmt.Fprintln(os.Stderr, ".")
			return err
		}

	case errors.ErrCodeAutoCreateBlocked:
		if ccbErr, ok := err.(*errors.CCBError); ok {
			fmt.Fprintf(os.Stderr, "Refusing to start here: an enclosing project exists at %v.\n",
				ccbErr.Details["anchor"])
			fmt.Fprintf(os.Stderr, "Run from the project root, or create %v/.ccb explicitly first.\n",
				ccbErr.Details["dir"])
			return err
		}

	case errors.ErrCodeRequestTimeout:
		fmt.Fprintf(os.Stderr, "Request timed out; the assistant may still answer. Check later with 'ccb pend'.\n")
		return err

	case errors.ErrCodeNoReply:
		fmt.Fprintf(os.Stderr, "No reply yet.\n")
		return err

	case errors.ErrCodeDaemonUnreachable:
		fmt.Fprintf(os.Stderr, "The assistant process is gone. Restart it with 'ccb askd start'.\n")
		return err

	case errors.ErrCodeConfigInvalid:
		fmt.Fprintf(os.Stderr, "Configuration is invalid: %v\n", err)
		return err
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if h.Verbose {
		if ccbErr, ok := err.(*errors.CCBError); ok {
			fmt.Fprintf(os.Stderr, "\nError details:\n%s\n", ccbErr.ToJSON())
		}
	}
	return err
}
