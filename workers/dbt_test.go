package workers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newDocsWorker(t *testing.T, command ...string) (*DbtWorker, chan struct{}) {
	t.Helper()

	project := newTestProject(t)
	require.NoError(t, os.MkdirAll(project.TransformDir(), 0755))

	cycles := make(chan struct{}, 1)
	worker := NewDbtWorker(testLogger(), project, "target-postgres", cycles)
	if len(command) > 0 {
		worker.command = command
	}
	return worker, cycles
}

func TestDbtWorker_GeneratesOnCycle(t *testing.T) {
	worker, cycles := newDocsWorker(t)

	marker := filepath.Join(worker.project.TransformDir(), "docs-generated")
	worker.command = []string{"/bin/sh", "-c", "touch " + marker}

	require.NoError(t, worker.Start())
	defer func() {
		require.NoError(t, worker.Stop())
	}()

	cycles <- struct{}{}

	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)
}

func TestDbtWorker_StopCancelsInFlightRun(t *testing.T) {
	worker, cycles := newDocsWorker(t, "sleep", "30")

	require.NoError(t, worker.Start())
	cycles <- struct{}{}

	// let the run get in flight
	time.Sleep(100 * time.Millisecond)

	started := time.Now()
	require.NoError(t, worker.Stop())
	require.Less(t, int64(time.Since(started)), int64(5*time.Second),
		"stop must cancel the run, not wait it out")
}

func TestDbtWorker_LaunchFailureIsNotFatal(t *testing.T) {
	worker, cycles := newDocsWorker(t, "definitely-not-a-binary")

	require.NoError(t, worker.Start())
	cycles <- struct{}{}

	// the failed launch is logged; the worker keeps serving cycles
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, worker.Stop())
}

func TestDbtWorker_StopBeforeStart(t *testing.T) {
	worker := NewDbtWorker(testLogger(), newTestProject(t), "target-postgres", make(chan struct{}))
	require.NoError(t, worker.Stop())
}

func TestDbtWorker_UsesConfiguredLoader(t *testing.T) {
	worker := NewDbtWorker(testLogger(), newTestProject(t), "t1", make(chan struct{}))
	require.Equal(t, []string{"dbt", "docs", "generate", "--target", "t1"}, worker.command)
}
