package supervisor

import (
	"github.com/meltanolabs/meltano-ui/sm"
)

// WorkerName is a unique identifier of a worker within the Supervisor.
type WorkerName string

// Worker is a unit encapsulating the lifecycle of one background
// process, goroutine or periodic task, which is launched and managed
// by the `Supervisor`.
//
// Start initiates the worker's job and returns once initiation
// completes; it must not block for the lifetime of the work.
// Stop requests graceful termination of anything the worker owns and
// must be bounded; it must be safe to call at any moment, including
// before Start and after a failed Start.
type Worker interface {
	Start() error
	Stop() error
}

const (
	WStateStopped  sm.State = "Stopped"
	WStateStarting sm.State = "Starting"
	WStateRunning  sm.State = "Running"
	WStateStopping sm.State = "Stopping"
	WStateFailed   sm.State = "Failed"

	// WStateNotExists is returned for lookups of unregistered workers.
	WStateNotExists sm.State = "NotExists"
)

// newWorkerSM returns filled state machine of the worker lifecycle.
//
// (*) -> [Stopped] -> [Starting] -> [Running] -> [Stopping] -> [Stopped]
//                        |   |__________|___________↑  ↑
//                        ↓              ↓               |
//                       [Failed] ----------------------|
//
// Starting -> Stopping and Failed -> Stopping keep Stop safe to call
// no matter how far startup got.
func newWorkerSM() sm.StateMachine {
	workerSM := sm.NewStateMachine()
	_ = workerSM.AddTransitions(WStateStopped, WStateStarting)
	_ = workerSM.AddTransitions(WStateStarting, WStateRunning, WStateFailed, WStateStopping)
	_ = workerSM.AddTransitions(WStateRunning, WStateStopping, WStateFailed)
	_ = workerSM.AddTransitions(WStateStopping, WStateStopped)
	_ = workerSM.AddTransitions(WStateFailed, WStateStopping)
	workerSM.SetState(WStateStopped)
	return workerSM
}
