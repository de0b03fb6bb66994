package supervisor

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/meltanolabs/meltano-ui/sm"
)

// StopFunc stops every registered worker in registration order.
// Only the first invocation has effect; repeated and concurrent calls
// collapse into the single stop sequence.
type StopFunc func()

// Supervisor owns a fixed, ordered set of workers: it starts them in
// registration order and hands back one aggregate stop closure.
//
// A failing Start is logged and the worker is marked Failed; startup
// of the remaining workers continues, so a partially failed stack
// stays usable and fully stoppable. The caller inspects WorkerStates
// to learn which workers made it.
type Supervisor struct {
	logger *logrus.Entry
	pool   WorkerPool

	handler EventHandler

	mutex    sync.Mutex
	started  bool
	stopping bool
	stopOnce sync.Once
}

// New returns a Supervisor writing its diagnostics to `logger`.
func New(appName string, logger *logrus.Entry) *Supervisor {
	return &Supervisor{
		logger: logger.WithFields(logrus.Fields{
			"app":     appName,
			"service": "worker-supervisor",
		}),
	}
}

// SetEventHandler installs an optional hook receiving a copy of every
// supervision event.
func (s *Supervisor) SetEventHandler(handler EventHandler) {
	s.handler = handler
}

// Register adds a worker under `name`. Workers start in registration
// order. Registration after StartAll is rejected: the worker set is
// fixed at process start.
func (s *Supervisor) Register(name WorkerName, worker Worker) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.started {
		return errors.Errorf("%s: supervisor already started", name)
	}
	return s.pool.SetWorker(name, worker)
}

// WorkerStates returns the current lifecycle state of every worker.
func (s *Supervisor) WorkerStates() map[WorkerName]sm.State {
	return s.pool.GetWorkersStates()
}

// StartAll starts every worker in registration order and returns the
// aggregate stop closure. "Started" means initiation completed, not
// fully ready; there is no barrier between one worker's Start
// returning and the next one beginning.
func (s *Supervisor) StartAll() StopFunc {
	s.mutex.Lock()
	s.started = true
	s.mutex.Unlock()

	for _, name := range s.pool.Names() {
		if s.stopRequested() {
			break
		}
		s.startWorker(name)
	}

	return s.Stop
}

// Stop runs the aggregate stop sequence exactly once. It is safe to
// call at any moment, even while StartAll is still in progress: the
// remaining workers are then left untouched in Stopped.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(s.stopAll)
}

func (s *Supervisor) stopRequested() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stopping
}

func (s *Supervisor) startWorker(name WorkerName) {
	if err := s.pool.SetState(name, WStateStarting); err != nil {
		s.emit(ErrorEvent(err.Error()).SetWorker(name))
		return
	}

	s.emit(InfoEvent("Starting worker").SetWorker(name))

	worker := s.pool.getWorker(name)
	if err := worker.Start(); err != nil {
		s.emit(ErrorEvent("Worker failed to start").
			SetWorker(name).
			SetField("error", err.Error()))

		if err := s.pool.SetState(name, WStateFailed); err != nil {
			s.emit(ErrorEvent(err.Error()).SetWorker(name))
		}
		return
	}

	if s.stopRequested() {
		// stop raced with startup; the worker must not outlive it
		_ = worker.Stop()
		return
	}

	if err := s.pool.SetState(name, WStateRunning); err != nil {
		s.emit(ErrorEvent(err.Error()).SetWorker(name))
	}
}

func (s *Supervisor) stopAll() {
	s.mutex.Lock()
	s.stopping = true
	s.mutex.Unlock()

	s.logger.Info("Stopping all background workers...")

	for _, name := range s.pool.Names() {
		s.stopWorker(name)
	}

	s.logger.Info("Workers stopped")
}

func (s *Supervisor) stopWorker(name WorkerName) {
	state := s.pool.GetState(name)
	if state == WStateStopped || state == WStateStopping {
		return
	}

	if err := s.pool.SetState(name, WStateStopping); err != nil {
		s.emit(ErrorEvent(err.Error()).SetWorker(name))
		return
	}

	worker := s.pool.getWorker(name)
	if err := worker.Stop(); err != nil {
		s.emit(ErrorEvent("Worker stop failed").
			SetWorker(name).
			SetField("error", err.Error()))
	}

	if err := s.pool.SetState(name, WStateStopped); err != nil {
		s.emit(ErrorEvent(err.Error()).SetWorker(name))
		return
	}

	s.emit(InfoEvent("Worker stopped").SetWorker(name))
}

func (s *Supervisor) emit(event Event) {
	entry := s.logger.WithField("worker", event.Worker).
		WithFields(logrus.Fields(event.Fields))
	if event.IsError() {
		entry.Error(event.Message)
	} else {
		entry.Info(event.Message)
	}

	if s.handler != nil {
		s.handler(event)
	}
}
