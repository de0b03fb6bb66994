package supervisor

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func collectExit(t *testing.T, ch <-chan ProcessExit) ProcessExit {
	t.Helper()
	select {
	case exit := <-ch:
		return exit
	case <-time.After(5 * time.Second):
		t.Fatal("exit status was not collected")
		return ProcessExit{}
	}
}

func TestSubprocessReaper_PrimeIdempotent(t *testing.T) {
	for i := 0; i < 5; i++ {
		Reaper().Prime()
	}

	// the collector still works after repeated priming
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	require.NoError(t, cmd.Start())

	exit := collectExit(t, Reaper().Watch(cmd.Process.Pid))
	require.Equal(t, 0, exit.ExitCode())
}

func TestSubprocessReaper_CollectsExitCode(t *testing.T) {
	Reaper().Prime()

	cmd := exec.Command("/bin/sh", "-c", "exit 3")
	require.NoError(t, cmd.Start())

	exit := collectExit(t, Reaper().Watch(cmd.Process.Pid))
	require.Equal(t, cmd.Process.Pid, exit.PID)
	require.Equal(t, 3, exit.ExitCode())
}

func TestSubprocessReaper_WatchBeforeExit(t *testing.T) {
	Reaper().Prime()

	cmd := exec.Command("/bin/sh", "-c", "sleep 0.1")
	require.NoError(t, cmd.Start())

	ch := Reaper().Watch(cmd.Process.Pid)
	exit := collectExit(t, ch)
	require.Equal(t, 0, exit.ExitCode())
}

func TestSubprocessReaper_WatchTwiceSameChannel(t *testing.T) {
	Reaper().Prime()

	cmd := exec.Command("/bin/sh", "-c", "sleep 1")
	require.NoError(t, cmd.Start())
	defer func() {
		_ = cmd.Process.Kill()
	}()

	first := Reaper().Watch(cmd.Process.Pid)
	second := Reaper().Watch(cmd.Process.Pid)
	require.Equal(t, first, second)

	Reaper().Forget(cmd.Process.Pid)
}
