package supervisor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

// ShutdownCoordinator owns the process-wide termination-signal
// handler. The first SIGTERM or SIGINT (or a programmatic Trigger)
// invokes the armed stop closure; later signals are swallowed by the
// installed handler until Disarm, so they can never double-run the
// stop sequence nor kill the process mid-shutdown.
//
// Construct one per process; Disarm is the explicit teardown and
// restores default signal handling.
type ShutdownCoordinator struct {
	logger *logrus.Entry

	signals chan os.Signal
	trigger chan struct{}
	done    chan struct{}

	armOnce     sync.Once
	triggerOnce sync.Once
	disarmOnce  sync.Once
}

func NewShutdownCoordinator(logger *logrus.Entry) *ShutdownCoordinator {
	return &ShutdownCoordinator{
		logger:  logger.WithField("service", "shutdown-coordinator"),
		signals: make(chan os.Signal, 2),
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Arm installs the signal handler and runs `stop` once the first
// termination signal arrives. Arm is a no-op after the first call.
func (c *ShutdownCoordinator) Arm(stop StopFunc) {
	c.armOnce.Do(func() {
		signal.Notify(c.signals, syscall.SIGTERM, syscall.SIGINT)

		go func() {
			defer close(c.done)

			select {
			case sig := <-c.signals:
				c.logger.WithField("signal", sig).
					Info("Received signal. Terminating service...")
			case <-c.trigger:
			}

			stop()
		}()
	})
}

// Trigger requests the shutdown sequence programmatically, as if a
// termination signal had been delivered.
func (c *ShutdownCoordinator) Trigger() {
	c.triggerOnce.Do(func() {
		close(c.trigger)
	})
}

// Wait blocks until the armed stop closure has completed.
func (c *ShutdownCoordinator) Wait() {
	<-c.done
}

// Disarm removes the signal handler; signals delivered afterwards get
// default handling again.
func (c *ShutdownCoordinator) Disarm() {
	c.disarmOnce.Do(func() {
		signal.Stop(c.signals)
	})
}
