package lock

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ccberrors "github.com/ccbridge/ccb/errors"
)

func TestAcquireCreatesStateAndLocks(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	require.NoError(t, err)
	defer l.Release()

	assert.DirExists(t, filepath.Join(dir, ".ccb"))
	assert.FileExists(t, filepath.Join(dir, ".ccb", LockFileName))
}

func TestAcquireIsExclusive(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	require.NoError(t, err)
	defer l.Release()

	// flock conflicts apply across open file descriptions, so a second
	// acquire in the same process exercises the same code path as a
	// second process.
	_, err = Acquire(dir)
	assert.True(t, ccberrors.Is(err, ccberrors.ErrCodeInstanceBusy))
}

func TestAcquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l.Release())

	l2, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestReleaseIdempotent(t *testing.T) {
	dir := t.TempDir()
	l, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l.Release())
	require.NoError(t, l.Release())
}

func TestAnchorRuleBlocksNestedAutoCreate(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".ccb"), 0755))
	nested := filepath.Join(root, "sub", "dir")
	require.NoError(t, os.MkdirAll(nested, 0755))

	_, err := Acquire(nested)
	assert.True(t, ccberrors.Is(err, ccberrors.ErrCodeAutoCreateBlocked))

	// The two failures must be distinguishable.
	assert.False(t, ccberrors.Is(err, ccberrors.ErrCodeInstanceBusy))
}

func TestNestedDirWithOwnStateIsAllowed(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".ccb"), 0755))
	nested := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(filepath.Join(nested, ".ccb"), 0755))

	// Explicit local state in the nested dir opts out of the anchor rule.
	l, err := Acquire(nested)
	require.NoError(t, err)
	defer l.Release()
}

func TestConcurrentAcquireExactlyOneWinner(t *testing.T) {
	dir := t.TempDir()

	const n = 10
	var wins, busies atomic.Int32
	var winner *Lock
	var winnerMu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := Acquire(dir)
			if err == nil {
				wins.Add(1)
				winnerMu.Lock()
				winner = l
				winnerMu.Unlock()
				return
			}
			if ccberrors.Is(err, ccberrors.ErrCodeInstanceBusy) {
				busies.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), busies.Load())
	if winner != nil {
		winner.Release()
	}
}

func TestAcquireFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "askd-abc-claude.lock")

	l, err := AcquireFile(path)
	require.NoError(t, err)
	defer l.Release()

	_, err = AcquireFile(path)
	assert.True(t, ccberrors.Is(err, ccberrors.ErrCodeInstanceBusy))
}
