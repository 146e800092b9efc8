package sentinel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReqIDUnique(t *testing.T) {
	a := NewReqID()
	b := NewReqID()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^\d{8}-\d{6}-\d{3}-\d+-\d+$`, a)
}

func TestWrapRequest(t *testing.T) {
	out := WrapRequest("summarize the build failure\n", "r-1")

	lines := strings.Split(out, "\n")
	assert.Equal(t, "REQ_ID: r-1", lines[0])
	assert.Contains(t, out, "summarize the build failure")
	assert.True(t, strings.HasSuffix(strings.TrimRight(out, "\n"), "DONE: r-1"))
}

func TestParseDone(t *testing.T) {
	tests := []struct {
		line string
		id   string
		ok   bool
	}{
		{"DONE: r-1", "r-1", true},
		{"  DONE:r-2  ", "r-2", true},
		{"DONE:", "", true},
		{"DONE: ", "", true},
		{"ALL_DONE: whatever", "", false},
		{"the work is DONE: r-1", "", false},
		{"regular output", "", false},
	}
	for _, tt := range tests {
		id, ok := ParseDone(tt.line)
		assert.Equal(t, tt.ok, ok, "line %q", tt.line)
		assert.Equal(t, tt.id, id, "line %q", tt.line)
	}
}

func TestIsTrailerNoise(t *testing.T) {
	assert.True(t, IsTrailerNoise(""))
	assert.True(t, IsTrailerNoise("   "))
	assert.True(t, IsTrailerNoise("TASK_DONE"))
	assert.True(t, IsTrailerNoise("BUILD_DONE: 20260301-120000-000-1-1"))

	assert.False(t, IsTrailerNoise("DONE: r-1"))
	assert.False(t, IsTrailerNoise("normal text"))
}

func TestStripReply(t *testing.T) {
	text := "first line\nsecond line\n\nDONE: r-1\nTASK_DONE\n\n"
	assert.Equal(t, "first line\nsecond line", StripReply(text, "r-1"))

	// Bare DONE in degraded mode is stripped too.
	assert.Equal(t, "reply", StripReply("reply\nDONE:\n", "r-1"))

	// A DONE for a different request id stays: the caller sees what
	// actually arrived.
	got := StripReply("reply\nDONE: r-9", "r-1")
	assert.Contains(t, got, "DONE: r-9")
}

func TestStripTrailingMarkers(t *testing.T) {
	text := "answer body\n\nDONE: 20260301-120000-000-1-1\nGENERIC_DONE\n"
	assert.Equal(t, "answer body", StripTrailingMarkers(text))

	assert.Equal(t, "", StripTrailingMarkers("DONE: x\n"))
	assert.Equal(t, "plain", StripTrailingMarkers("plain"))
}
