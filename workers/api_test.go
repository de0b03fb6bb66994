package workers

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meltanolabs/meltano-ui/config"
	"github.com/meltanolabs/meltano-ui/sm"
	"github.com/meltanolabs/meltano-ui/supervisor"
)

func testStates() map[supervisor.WorkerName]sm.State {
	return map[supervisor.WorkerName]sm.State{
		WorkerCompiler: supervisor.WStateRunning,
		WorkerAPI:      supervisor.WStateRunning,
	}
}

func startAPIWorker(t *testing.T, cfg config.UIConfig) *APIWorker {
	t.Helper()

	worker := NewAPIWorker(testLogger(), newTestProject(t), cfg, testStates)
	require.NoError(t, worker.Start())
	t.Cleanup(func() {
		_ = worker.Stop()
	})
	return worker
}

func TestAPIWorker_ServesEndpoints(t *testing.T) {
	worker := startAPIWorker(t, config.UIConfig{Bind: "127.0.0.1", BindPort: 0})
	base := "http://" + worker.Addr()

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/api/v1/workers")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var states map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&states))
	require.Equal(t, string(supervisor.WStateRunning), states[string(WorkerCompiler)])

	resp, err = http.Get(base + "/api/v1/project")
	require.NoError(t, err)
	defer resp.Body.Close()

	var project map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&project))
	require.Equal(t, "carbon", project["name"])
}

func TestAPIWorker_StopUnbindsListener(t *testing.T) {
	worker := startAPIWorker(t, config.UIConfig{Bind: "127.0.0.1", BindPort: 0})
	addr := worker.Addr()

	require.NoError(t, worker.Stop())

	client := http.Client{Timeout: 200 * time.Millisecond}
	_, err := client.Get("http://" + addr + "/health")
	require.Error(t, err, "the listener must be unbound after Stop")
}

func TestAPIWorker_BindFailureIsStartFailure(t *testing.T) {
	// occupy a port, then try to bind the worker onto it
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port
	worker := NewAPIWorker(testLogger(), newTestProject(t),
		config.UIConfig{Bind: "127.0.0.1", BindPort: port}, testStates)

	require.Error(t, worker.Start())
	require.NoError(t, worker.Stop(), "stop must stay safe after a failed start")
}

func TestAPIWorker_StopBeforeStart(t *testing.T) {
	worker := NewAPIWorker(testLogger(), newTestProject(t),
		config.UIConfig{Bind: "127.0.0.1", BindPort: 0}, testStates)
	require.NoError(t, worker.Stop())
}

func TestAPIWorker_AddrBeforeStart(t *testing.T) {
	worker := NewAPIWorker(testLogger(), newTestProject(t),
		config.UIConfig{Bind: "127.0.0.1", BindPort: 0}, testStates)
	require.Equal(t, "", worker.Addr())
}

func TestAPIWorker_Reload(t *testing.T) {
	worker := startAPIWorker(t, config.UIConfig{Bind: "127.0.0.1", BindPort: 0, Reload: true})
	base := fmt.Sprintf("http://%s/health", worker.Addr())

	resp, err := http.Get(base)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// the server keeps answering across a config-triggered router swap
	require.NoError(t, writeProjectNameChange(worker.project))

	require.Eventually(t, func() bool {
		resp, err := http.Get(base)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 50*time.Millisecond)
}

func writeProjectNameChange(project *config.Project) error {
	return os.WriteFile(project.RootDir(config.ProjectFile), []byte("name: carbon\nversion: 2\n"), 0644)
}
