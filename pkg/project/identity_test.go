package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityDeterministic(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, Identity(dir), Identity(dir))
	assert.Len(t, Identity(dir), 64)
}

func TestIdentityDistinctPaths(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	assert.NotEqual(t, Identity(a), Identity(b))
}

func TestIdentityCollapsesRelativeReferences(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))

	// "<dir>/sub/.." and "<dir>" are the same directory.
	assert.Equal(t, Identity(dir), Identity(filepath.Join(sub, "..")))
}

func TestIdentityResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(real, 0755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(real, link))

	assert.Equal(t, Identity(real), Identity(link))
}

func TestIdentityNonexistentPathFallsBack(t *testing.T) {
	// Identity must be computable for paths that do not exist.
	key := Identity("/no/such/path/anywhere")
	assert.Len(t, key, 64)
	assert.Equal(t, key, Identity("/no/such/path/anywhere"))
}

func TestShortKeyIsPrefix(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, Identity(dir)[:12], ShortKey(dir))
}

func TestFindAnchor(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".ccb"), 0755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	got := FindAnchor(nested)
	// TempDir may itself sit behind a symlink; compare identities.
	assert.Equal(t, Identity(root), Identity(got))
}

func TestFindAnchorNone(t *testing.T) {
	dir := t.TempDir()
	anchor := FindAnchor(dir)
	if anchor != "" {
		// An ancestor of the temp root could in principle hold state;
		// it must at least not be the temp dir itself.
		assert.NotEqual(t, Identity(dir), Identity(anchor))
	}
}
