package workers

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/meltanolabs/meltano-ui/config"
)

// DbtWorker regenerates dbt docs after every successful compile cycle.
// It is built only when a docs loader is configured; the generation
// command runs asynchronously through the Subprocess primitive and an
// in-flight run is cancelled on Stop.
type DbtWorker struct {
	logger  *logrus.Entry
	project *config.Project
	loader  string
	cycles  <-chan struct{}
	command []string

	mutex   sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewDbtWorker subscribes to `cycles`, the compile-cycle channel of
// the CompilerWorker, and generates docs for the `loader` target.
func NewDbtWorker(logger *logrus.Entry, project *config.Project, loader string, cycles <-chan struct{}) *DbtWorker {
	return &DbtWorker{
		logger:  logger.WithFields(logrus.Fields{"worker": "dbt-docs", "loader": loader}),
		project: project,
		loader:  loader,
		cycles:  cycles,
		command: []string{"dbt", "docs", "generate", "--target", loader},
	}
}

func (w *DbtWorker) Start() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.started {
		return nil
	}
	w.started = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.loop(w.stopCh, w.doneCh)
	return nil
}

func (w *DbtWorker) Stop() error {
	w.mutex.Lock()
	stopCh, doneCh := w.stopCh, w.doneCh
	w.stopCh = nil
	w.mutex.Unlock()

	if stopCh == nil {
		return nil
	}

	close(stopCh)
	<-doneCh
	return nil
}

func (w *DbtWorker) loop(stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-w.cycles:
			w.generateDocs(stopCh)
		case <-stopCh:
			return
		}
	}
}

// generateDocs runs one `dbt docs generate` pass, bounded by stopCh.
func (w *DbtWorker) generateDocs(stopCh <-chan struct{}) {
	proc := NewSubprocess(w.logger, w.command...)
	proc.SetDir(w.project.TransformDir())

	if err := proc.Start(); err != nil {
		w.logger.WithError(err).Error("dbt docs generation failed to launch")
		return
	}

	select {
	case <-proc.Done():
		if exit := proc.Exit(); exit != nil && exit.ExitCode() != 0 {
			w.logger.WithField("code", exit.ExitCode()).Error("dbt docs generation failed")
			return
		}
		w.logger.Info("dbt docs generated")

	case <-stopCh:
		if err := proc.Stop(); err != nil {
			w.logger.WithError(err).Error("dbt docs generation failed to stop")
		}
	}
}
