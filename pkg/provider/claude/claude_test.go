package claude

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ccberrors "github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/pkg/binding"
)

const sampleTranscript = `{"type":"user","message":{"role":"user","content":"hello"},"timestamp":"2026-03-01T12:00:00Z"}
{"type":"assistant","sessionId":"sess-1","message":{"role":"assistant","content":[{"type":"text","text":"first answer"}]},"timestamp":"2026-03-01T12:00:05Z"}
not even json
{"type":"system","subtype":"init"}
{"type":"assistant","sessionId":"sess-1","message":{"role":"assistant","content":[{"type":"thinking","thinking":"..."},{"type":"text","text":"second answer"}]},"timestamp":"2026-03-01T12:01:00Z"}
`

func writeTranscript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sess-1.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLatestReturnsLastAssistantMessage(t *testing.T) {
	path := writeTranscript(t, sampleTranscript)

	msg, err := (&Adapter{}).Latest(path)
	require.NoError(t, err)
	assert.Equal(t, "second answer", msg.Text)
	assert.Equal(t, "sess-1", msg.SessionID)
	assert.Equal(t, 2026, msg.Timestamp.Year())
}

func TestLatestStringContent(t *testing.T) {
	path := writeTranscript(t, `{"type":"assistant","message":{"role":"assistant","content":"plain reply"}}`+"\n")

	msg, err := (&Adapter{}).Latest(path)
	require.NoError(t, err)
	assert.Equal(t, "plain reply", msg.Text)
}

func TestLatestNoAssistantMessageYet(t *testing.T) {
	path := writeTranscript(t, `{"type":"user","message":{"role":"user","content":"hi"}}`+"\n")

	_, err := (&Adapter{}).Latest(path)
	assert.True(t, ccberrors.Is(err, ccberrors.ErrCodeNoReply))
}

func TestLatestMissingFile(t *testing.T) {
	_, err := (&Adapter{}).Latest(filepath.Join(t.TempDir(), "gone.jsonl"))
	assert.True(t, ccberrors.Is(err, ccberrors.ErrCodeNoReply))
}

func TestIsActive(t *testing.T) {
	path := writeTranscript(t, sampleTranscript)
	a := &Adapter{}

	assert.True(t, a.IsActive(&binding.Binding{Active: true, SessionPath: path}))
	assert.False(t, a.IsActive(&binding.Binding{Active: false, SessionPath: path}))
	assert.False(t, a.IsActive(&binding.Binding{Active: true, SessionPath: path + ".gone"}))
	assert.False(t, a.IsActive(nil))
}

func TestFollowStreamsAppendedMessages(t *testing.T) {
	path := writeTranscript(t, sampleTranscript)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := (&Adapter{}).Follow(ctx, path)
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"streamed"}]}}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case msg := <-ch:
		assert.Equal(t, "streamed", msg.Text)
	case <-ctx.Done():
		t.Fatal("no streamed message before timeout")
	}
}
