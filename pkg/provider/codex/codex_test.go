package codex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ccberrors "github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/pkg/provider"
)

func TestLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.jsonl")
	content := `{"role":"user","content":"question","session_id":"x-1"}
{"role":"assistant","content":"answer one","session_id":"x-1","timestamp":"2026-03-01T10:00:00Z"}
{"role":"assistant","content":"answer two","session_id":"x-1"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	msg, err := (&Adapter{}).Latest(path)
	require.NoError(t, err)
	assert.Equal(t, "answer two", msg.Text)
	assert.Equal(t, "x-1", msg.SessionID)
}

func TestLatestEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	_, err := (&Adapter{}).Latest(path)
	assert.True(t, ccberrors.Is(err, ccberrors.ErrCodeNoReply))
}

func TestRegistered(t *testing.T) {
	a, err := provider.Get(Name)
	require.NoError(t, err)
	assert.Equal(t, Name, a.Name())
}
