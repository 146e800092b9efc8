package state

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadDelete(t *testing.T) {
	runDir := t.TempDir()
	s := NewStore(runDir, "abcdef0123456789", "claude")

	require.NoError(t, s.Write(&DaemonState{
		PID:       os.Getpid(),
		ParentPID: os.Getppid(),
		Managed:   true,
		WorkDir:   "/work/p",
		Provider:  "claude",
	}))

	st, err := s.Read()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.Managed)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.True(t, st.IsLive())
	assert.False(t, st.UpdatedAt.IsZero())

	require.NoError(t, s.Delete())
	st, err = s.Read()
	require.NoError(t, err)
	assert.Nil(t, st)

	// Deleting again is fine.
	require.NoError(t, s.Delete())
}

func TestReadToleratesCorrupt(t *testing.T) {
	runDir := t.TempDir()
	s := NewStore(runDir, "abcdef0123456789", "claude")
	require.NoError(t, os.WriteFile(s.Path(), []byte("<garbage>"), 0644))

	st, err := s.Read()
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestPathsDistinctPerProviderAndProject(t *testing.T) {
	runDir := t.TempDir()
	a := FilePath(runDir, "aaaaaaaaaaaaaaaa", "claude")
	b := FilePath(runDir, "bbbbbbbbbbbbbbbb", "claude")
	c := FilePath(runDir, "aaaaaaaaaaaaaaaa", "codex")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)

	assert.NotEqual(t, SocketPath(runDir, "aaaaaaaaaaaaaaaa", "claude"), a)
	assert.NotEqual(t, LockPath(runDir, "aaaaaaaaaaaaaaaa", "claude"), a)
}

func TestListStates(t *testing.T) {
	runDir := t.TempDir()
	require.NoError(t, NewStore(runDir, "aaaaaaaaaaaaaaaa", "claude").Write(&DaemonState{PID: 1, Provider: "claude"}))
	require.NoError(t, NewStore(runDir, "bbbbbbbbbbbbbbbb", "codex").Write(&DaemonState{PID: 2, Provider: "codex"}))
	require.NoError(t, os.WriteFile(runDir+"/askd-broken-x.json", []byte("{"), 0644))
	require.NoError(t, os.WriteFile(runDir+"/unrelated.json", []byte("{}"), 0644))

	states := ListStates(runDir)
	assert.Len(t, states, 2)
}

func TestDeadPIDIsNotLive(t *testing.T) {
	st := &DaemonState{PID: -5}
	assert.False(t, st.IsLive())
	var nilState *DaemonState
	assert.False(t, nilState.IsLive())
}
