package supervisor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ProcessExit is the collected exit status of a watched child process.
type ProcessExit struct {
	PID    int
	Status unix.WaitStatus
}

// ExitCode returns the shell-style exit code of the child: the plain
// status for a normal exit, 128+signal for a killed one.
func (e ProcessExit) ExitCode() int {
	if e.Status.Signaled() {
		return 128 + int(e.Status.Signal())
	}
	return e.Status.ExitStatus()
}

const reaperPollPeriod = time.Second

// SubprocessReaper is the process-wide collector of child-process exit
// statuses. Workers spawn subprocesses from their own goroutines, so
// exit collection must go through one facility that is registered
// before the first such spawn; otherwise statuses are lost and the
// children leak as zombies.
//
// Only watched pids are ever waited on, so the reaper cannot steal
// exit statuses from unrelated exec.Cmd users. SIGCHLD drives
// collection; a periodic poll covers a child that exits before its
// pid is registered.
type SubprocessReaper struct {
	mutex   sync.Mutex
	primed  sync.Once
	watched map[int]chan ProcessExit
	sigchld chan os.Signal
}

var reaperInstance = &SubprocessReaper{
	watched: make(map[int]chan ProcessExit),
	sigchld: make(chan os.Signal, 1),
}

// Reaper returns the process-wide SubprocessReaper.
func Reaper() *SubprocessReaper {
	return reaperInstance
}

// Prime registers the SIGCHLD collector. It must run before any worker
// that spawns subprocesses outside the main goroutine is constructed.
// Prime is idempotent: the second and every later call is a no-op.
func (r *SubprocessReaper) Prime() {
	r.primed.Do(func() {
		signal.Notify(r.sigchld, syscall.SIGCHLD)
		go r.collectLoop()
	})
}

// Watch registers `pid` for exit collection. The returned channel
// receives the exit status once and is then closed. Watching the same
// pid twice returns the same channel.
func (r *SubprocessReaper) Watch(pid int) <-chan ProcessExit {
	r.mutex.Lock()
	ch, ok := r.watched[pid]
	if !ok {
		ch = make(chan ProcessExit, 1)
		r.watched[pid] = ch
	}
	r.mutex.Unlock()

	// the child may already be gone
	r.collect()
	return ch
}

// Forget drops `pid` without waiting for it.
func (r *SubprocessReaper) Forget(pid int) {
	r.mutex.Lock()
	delete(r.watched, pid)
	r.mutex.Unlock()
}

func (r *SubprocessReaper) collectLoop() {
	ticker := time.NewTicker(reaperPollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.sigchld:
		case <-ticker.C:
		}
		r.collect()
	}
}

// collect reaps every watched pid that has already exited.
func (r *SubprocessReaper) collect() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for pid, ch := range r.watched {
		var status unix.WaitStatus
		wpid, err := unix.Wait4(pid, &status, unix.WNOHANG, nil)

		switch {
		case err == unix.ECHILD:
			// reaped elsewhere; unblock the waiter without a status
			close(ch)
			delete(r.watched, pid)
		case err != nil || wpid != pid:
			continue
		case status.Exited() || status.Signaled():
			ch <- ProcessExit{PID: pid, Status: status}
			close(ch)
			delete(r.watched, pid)
		}
	}
}
