package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{
			name: "nil error",
			err:  nil,
			want: "",
		},
		{
			name: "plain ccb error",
			err:  New(ErrCodeInstanceBusy, "busy"),
			want: ErrCodeInstanceBusy,
		},
		{
			name: "wrapped ccb error",
			err:  fmt.Errorf("outer: %w", New(ErrCodeRequestTimeout, "timed out")),
			want: ErrCodeRequestTimeout,
		},
		{
			name: "non-ccb error",
			err:  fmt.Errorf("plain"),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetCode(tt.err))
		})
	}
}

func TestIsExpected(t *testing.T) {
	assert.True(t, IsExpected(BindingNotFound("/tmp/p", "claude")))
	assert.True(t, IsExpected(InstanceBusy("/tmp/p", 123)))
	assert.True(t, IsExpected(AutoCreateBlocked("/tmp/p/sub", "/tmp/p")))
	assert.True(t, IsExpected(RequestTimeout("r1", "1s")))
	assert.True(t, IsExpected(NoReply("/tmp/t.jsonl")))

	assert.False(t, IsExpected(nil))
	assert.False(t, IsExpected(New(ErrCodeInternal, "boom")))
	assert.False(t, IsExpected(DaemonUnreachable("claude", fmt.Errorf("broken pipe"))))
	assert.False(t, IsExpected(fmt.Errorf("plain")))
}

func TestWithDetailAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(cause, ErrCodeDaemonUnreachable, "pipe broke").WithDetail("provider", "claude")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "claude", err.Details["provider"])
	assert.Contains(t, err.Error(), "DAEMON_UNREACHABLE")
	assert.Contains(t, err.Error(), "root cause")
}

func TestConstructorsCarryDetails(t *testing.T) {
	err := AutoCreateBlocked("/work/nested", "/work")
	assert.Equal(t, ErrCodeAutoCreateBlocked, err.Code)
	assert.Equal(t, "/work", err.Details["anchor"])

	busy := InstanceBusy("/work", 0)
	_, hasPID := busy.Details["holder_pid"]
	assert.False(t, hasPID)
}
