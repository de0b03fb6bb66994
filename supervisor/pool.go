package supervisor

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/meltanolabs/meltano-ui/sm"
)

var ErrWorkerNotExist = func(name WorkerName) error {
	return errors.Errorf("%s: not exist", name)
}

// workerRO is a worker runtime object: the worker instance
// together with its lifecycle state machine.
type workerRO struct {
	sm.StateMachine
	worker Worker
}

// WorkerPool is an ordered collection of workers with their states.
// Order is registration order; it is the start order and the stop order.
type WorkerPool struct {
	mutex   sync.RWMutex
	order   []WorkerName
	workers map[WorkerName]*workerRO
}

// SetWorker adds a worker into the pool, keeping registration order.
func (p *WorkerPool) SetWorker(name WorkerName, worker Worker) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.workers == nil {
		p.workers = make(map[WorkerName]*workerRO)
	}
	if _, ok := p.workers[name]; ok {
		return errors.Errorf("%s: already registered", name)
	}

	p.workers[name] = &workerRO{
		StateMachine: newWorkerSM(),
		worker:       worker,
	}
	p.order = append(p.order, name)
	return nil
}

// Names returns all worker names in registration order.
func (p *WorkerPool) Names() []WorkerName {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	names := make([]WorkerName, len(p.order))
	copy(names, p.order)
	return names
}

// getWorker returns the worker registered under `name`, or nil.
func (p *WorkerPool) getWorker(name WorkerName) Worker {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if ro, ok := p.workers[name]; ok {
		return ro.worker
	}
	return nil
}

// GetWorkersStates returns the current state of all workers.
func (p *WorkerPool) GetWorkersStates() map[WorkerName]sm.State {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	r := map[WorkerName]sm.State{}
	for name, ro := range p.workers {
		r[name] = ro.State()
	}
	return r
}

// GetState returns the current state of the worker with the specified `name`.
func (p *WorkerPool) GetState(name WorkerName) sm.State {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if ro, ok := p.workers[name]; ok {
		return ro.State()
	}
	return WStateNotExists
}

// SetState updates the lifecycle state of the worker with the specified `name`.
func (p *WorkerPool) SetState(name WorkerName, state sm.State) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	ro, ok := p.workers[name]
	if !ok {
		return ErrWorkerNotExist(name)
	}

	return errors.Wrap(ro.DoTransition(state), string(name))
}
