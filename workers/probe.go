package workers

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultProbeInterval is the pause between availability polls.
	DefaultProbeInterval = 2 * time.Second
	// DefaultProbeAttempts bounds how long unreachability goes
	// unreported; the probe keeps polling quietly afterwards.
	DefaultProbeAttempts = 30
)

// UIAvailableWorker polls the UI endpoint until it answers, so the
// operator can tell when the stack is actually reachable. Purely
// observational: its readiness signal gates nothing.
type UIAvailableWorker struct {
	logger *logrus.Entry
	url    string

	interval    time.Duration
	maxAttempts int
	client      *http.Client

	reached int32

	mutex  sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewUIAvailableWorker(logger *logrus.Entry, url string) *UIAvailableWorker {
	return &UIAvailableWorker{
		logger:      logger.WithField("worker", "ui-available"),
		url:         url,
		interval:    DefaultProbeInterval,
		maxAttempts: DefaultProbeAttempts,
		client:      &http.Client{Timeout: time.Second},
	}
}

// SetInterval overrides DefaultProbeInterval; call before Start.
func (w *UIAvailableWorker) SetInterval(d time.Duration) { w.interval = d }

// Reached reports whether a successful response has been observed.
func (w *UIAvailableWorker) Reached() bool {
	return atomic.LoadInt32(&w.reached) == 1
}

func (w *UIAvailableWorker) Start() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.stopCh != nil {
		return nil
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.poll(w.stopCh, w.doneCh)
	return nil
}

// Stop cancels the poll loop, whether or not readiness was ever seen.
func (w *UIAvailableWorker) Stop() error {
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

func (w *UIAvailableWorker) poll(stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var attempts int
	for {
		select {
		case <-ticker.C:
			if w.check() {
				atomic.StoreInt32(&w.reached, 1)
				w.logger.Infof("Meltano UI is now reachable at %s", w.url)
				return
			}

			attempts++
			if w.maxAttempts > 0 && attempts == w.maxAttempts {
				w.logger.Warnf("Meltano UI did not become reachable after %d attempts", attempts)
			}

		case <-stopCh:
			return
		}
	}
}

func (w *UIAvailableWorker) check() bool {
	resp, err := w.client.Get(w.url)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusBadRequest
}
