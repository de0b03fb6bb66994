package workers

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUIAvailableWorker_ReportsReadiness(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	worker := NewUIAvailableWorker(testLogger(), server.URL)
	worker.SetInterval(10 * time.Millisecond)

	require.NoError(t, worker.Start())
	defer func() {
		require.NoError(t, worker.Stop())
	}()

	require.Eventually(t, worker.Reached, 2*time.Second, 10*time.Millisecond)
}

func TestUIAvailableWorker_KeepsPollingThroughErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	worker := NewUIAvailableWorker(testLogger(), server.URL)
	worker.SetInterval(10 * time.Millisecond)

	require.NoError(t, worker.Start())
	defer func() {
		require.NoError(t, worker.Stop())
	}()

	require.Eventually(t, worker.Reached, 2*time.Second, 10*time.Millisecond)
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestUIAvailableWorker_StopBeforeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	worker := NewUIAvailableWorker(testLogger(), server.URL)
	worker.SetInterval(10 * time.Millisecond)

	require.NoError(t, worker.Start())
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, worker.Stop())
	require.False(t, worker.Reached())
}

func TestUIAvailableWorker_StopBeforeStart(t *testing.T) {
	worker := NewUIAvailableWorker(testLogger(), "http://localhost:0")
	require.NoError(t, worker.Stop())
}

func TestUIAvailableWorker_UnreachableTarget(t *testing.T) {
	// an address nothing listens on
	worker := NewUIAvailableWorker(testLogger(), "http://127.0.0.1:1")
	worker.SetInterval(10 * time.Millisecond)

	require.NoError(t, worker.Start())
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, worker.Stop())
	require.False(t, worker.Reached())
}
