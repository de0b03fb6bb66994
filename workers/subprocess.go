package workers

import (
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/meltanolabs/meltano-ui/supervisor"
)

// DefaultStopTimeout bounds the graceful-termination wait before a
// managed subprocess is force killed.
const DefaultStopTimeout = 10 * time.Second

// Subprocess is a managed child process: it is launched in its own
// process group with its exit status collected through the
// process-wide SubprocessReaper, and stopped with SIGTERM first and
// SIGKILL after a bounded wait.
//
// The reaper must be primed before Start is called; Start itself is
// safe to call from any goroutine.
type Subprocess struct {
	logger      *logrus.Entry
	args        []string
	dir         string
	env         []string
	stopTimeout time.Duration

	mutex   sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	exit    *supervisor.ProcessExit
	stopped bool
}

func NewSubprocess(logger *logrus.Entry, args ...string) *Subprocess {
	return &Subprocess{
		logger:      logger.WithField("proc", args[0]),
		args:        args,
		stopTimeout: DefaultStopTimeout,
	}
}

// SetDir sets the working directory of the child.
func (p *Subprocess) SetDir(dir string) { p.dir = dir }

// SetEnv sets the environment of the child; nil inherits the parent's.
func (p *Subprocess) SetEnv(env []string) { p.env = env }

// SetStopTimeout overrides DefaultStopTimeout.
func (p *Subprocess) SetStopTimeout(d time.Duration) { p.stopTimeout = d }

// Start launches the child and registers it with the reaper.
func (p *Subprocess) Start() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.stopped {
		return errors.Errorf("%s: already stopped", p.args[0])
	}
	if p.cmd != nil {
		return errors.Errorf("%s: already started", p.args[0])
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.Dir = p.dir
	cmd.Env = p.env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "%s: start", p.args[0])
	}

	p.cmd = cmd
	p.done = make(chan struct{})

	exitCh := supervisor.Reaper().Watch(cmd.Process.Pid)
	go func() {
		exit, ok := <-exitCh
		p.mutex.Lock()
		if ok {
			p.exit = &exit
		}
		close(p.done)
		p.mutex.Unlock()
	}()

	p.logger.WithField("pid", cmd.Process.Pid).Info("Subprocess started")
	return nil
}

// Done returns a channel closed once the child has exited.
// It is nil until Start succeeds.
func (p *Subprocess) Done() <-chan struct{} {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.done
}

// Exit returns the collected exit status, or nil while the child is
// alive (or when its status was collected elsewhere).
func (p *Subprocess) Exit() *supervisor.ProcessExit {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.exit
}

// Running reports whether the child was started and has not exited.
func (p *Subprocess) Running() bool {
	p.mutex.Lock()
	done := p.done
	p.mutex.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Stop requests graceful termination of the child's process group,
// waits the bounded stop timeout and escalates to SIGKILL. It is safe
// to call before Start (the later Start is then refused) and after the
// child already exited.
func (p *Subprocess) Stop() error {
	p.mutex.Lock()
	p.stopped = true
	cmd, done := p.cmd, p.done
	p.mutex.Unlock()

	if cmd == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}

	pid := cmd.Process.Pid
	_ = unix.Kill(-pid, unix.SIGTERM)

	select {
	case <-done:
		p.logger.Info("Subprocess terminated")
		return nil
	case <-time.After(p.stopTimeout):
	}

	p.logger.Warn("Graceful termination timed out, sending SIGKILL")
	_ = unix.Kill(-pid, unix.SIGKILL)

	select {
	case <-done:
		return nil
	case <-time.After(p.stopTimeout):
		supervisor.Reaper().Forget(pid)
		return errors.Errorf("%s (pid %d): did not exit after SIGKILL", p.args[0], pid)
	}
}
