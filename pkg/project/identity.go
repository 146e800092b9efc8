// Package project derives stable identity for a working directory and
// locates the directory that anchors a project's control plane.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/pkg/paths"
)

// Normalize canonicalizes a path for identity derivation: absolute,
// symlink-resolved, case-folded on case-insensitive filesystems. When
// resolution fails (broken symlink, nonexistent path) the absolute form
// is used as-is; identity must always be computable.
func Normalize(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	canonical, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		canonical = absPath
	}
	return fold(canonical)
}

// NormalizeChecked is Normalize plus a report of when canonical
// resolution failed and the unresolved absolute form stood in. The
// returned path is always usable; the error is IDENTITY_FALLBACK and
// only worth surfacing in diagnostics.
func NormalizeChecked(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	canonical, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return fold(absPath), errors.Wrap(err, errors.ErrCodeIdentityFallback,
			"path did not resolve; identity derived from the absolute form")
	}
	return fold(canonical), nil
}

func fold(path string) string {
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		return strings.ToLower(path)
	}
	return path
}

// Identity returns the stable project key for a working directory: the
// sha256 hex digest of its normalized path. Identical paths always yield
// the same key; the path need not exist. No side effects.
func Identity(path string) string {
	sum := sha256.Sum256([]byte(Normalize(path)))
	return hex.EncodeToString(sum[:])
}

// ShortKey returns the 12-character prefix of a project key, used in
// file and socket names where the full digest is unwieldy.
func ShortKey(path string) string {
	return Identity(path)[:12]
}

// FindAnchor returns the nearest directory, starting at dir and walking
// toward the filesystem root, that contains a local state directory
// (.ccb). Returns "" when no ancestor is initialized.
func FindAnchor(dir string) string {
	current, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		info, err := os.Stat(filepath.Join(current, paths.StateDirName))
		if err == nil && info.IsDir() {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}
