package process

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAliveSelf(t *testing.T) {
	assert.True(t, IsAlive(os.Getpid()))
}

func TestIsAliveInvalidPID(t *testing.T) {
	assert.False(t, IsAlive(0))
	assert.False(t, IsAlive(-1))
}

func TestIsAliveExitedProcess(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())

	// Reaped child: the pid must no longer probe as alive.
	deadline := time.Now().Add(2 * time.Second)
	for IsAlive(pid) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, IsAlive(pid))
}
