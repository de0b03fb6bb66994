package workers

import (
	"github.com/sirupsen/logrus"

	"github.com/meltanolabs/meltano-ui/config"
)

// AirflowWorker wraps the externally managed orchestrator pair: the
// Airflow scheduler and its webserver. Both are spawned off the
// calling goroutine so a slow launch never stalls startup of the rest
// of the stack; the SubprocessReaper must be primed before this worker
// is constructed.
type AirflowWorker struct {
	logger  *logrus.Entry
	project *config.Project

	scheduler *Subprocess
	webserver *Subprocess
}

func NewAirflowWorker(logger *logrus.Entry, project *config.Project) *AirflowWorker {
	log := logger.WithField("worker", "airflow")
	return &AirflowWorker{
		logger:    log,
		project:   project,
		scheduler: NewSubprocess(log, "airflow", "scheduler"),
		webserver: NewSubprocess(log, "airflow", "webserver"),
	}
}

// Start launches the scheduler and the webserver. Launch errors are
// logged rather than returned: the stack stays usable without the
// orchestrator, and a missing airflow binary should not fail startup
// of everything else.
func (w *AirflowWorker) Start() error {
	for _, proc := range []*Subprocess{w.scheduler, w.webserver} {
		proc.SetDir(w.project.RootDir())

		proc := proc
		go func() {
			if err := proc.Start(); err != nil {
				w.logger.WithError(err).Error("Airflow process failed to launch")
			}
		}()
	}
	return nil
}

// Stop terminates the webserver first, then the scheduler, each with
// the bounded Subprocess escalation. The last error wins.
func (w *AirflowWorker) Stop() error {
	var result error
	for _, proc := range []*Subprocess{w.webserver, w.scheduler} {
		if err := proc.Stop(); err != nil {
			w.logger.WithError(err).Error("Airflow process failed to stop")
			result = err
		}
	}
	return result
}
