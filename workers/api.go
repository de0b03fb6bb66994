package workers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/meltanolabs/meltano-ui/config"
	"github.com/meltanolabs/meltano-ui/sm"
	"github.com/meltanolabs/meltano-ui/supervisor"
)

// ShutdownGracePeriod bounds the drain of in-flight requests on Stop.
const ShutdownGracePeriod = 15 * time.Second

// StatesFunc supplies the live worker state map for the status endpoint.
type StatesFunc func() map[supervisor.WorkerName]sm.State

// APIWorker serves the Meltano UI and API. Start binds the listener
// synchronously, so an unusable address surfaces as a start failure,
// then serves in the background; Stop drains in-flight requests within
// ShutdownGracePeriod and closes the server afterwards.
//
// In reload mode the worker watches the project configuration files
// and atomically swaps the router when they change.
type APIWorker struct {
	logger  *logrus.Entry
	project *config.Project
	cfg     config.UIConfig
	states  StatesFunc

	handler atomic.Value // http.Handler

	mutex    sync.Mutex
	server   *http.Server
	listener net.Listener
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewAPIWorker(logger *logrus.Entry, project *config.Project, cfg config.UIConfig, states StatesFunc) *APIWorker {
	return &APIWorker{
		logger:  logger.WithField("worker", "api-server"),
		project: project,
		cfg:     cfg,
		states:  states,
	}
}

// Addr returns the bound listen address; empty before Start.
func (w *APIWorker) Addr() string {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.listener == nil {
		return ""
	}
	return w.listener.Addr().String()
}

func (w *APIWorker) Start() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.server != nil {
		return errors.New("api server: already started")
	}

	listener, err := net.Listen("tcp", w.cfg.TCPAddr())
	if err != nil {
		return errors.Wrap(err, "bind api server")
	}

	w.handler.Store(w.buildRouter())
	w.listener = listener
	w.server = &http.Server{
		Handler:           http.HandlerFunc(w.serveHTTP),
		ReadHeaderTimeout: time.Minute,
	}

	go func(server *http.Server) {
		w.logger.Infof("Starting API Server at: %s", listener.Addr())

		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			w.logger.WithError(err).Error("API server failed")
		}
	}(w.server)

	if w.cfg.Reload {
		if err := w.watchConfig(); err != nil {
			w.logger.WithError(err).Warn("Configuration reload watcher unavailable")
		}
	}
	return nil
}

func (w *APIWorker) Stop() error {
	w.mutex.Lock()
	server := w.server
	watcher, stopCh, doneCh := w.watcher, w.stopCh, w.doneCh
	w.watcher = nil
	w.stopCh = nil
	w.mutex.Unlock()

	if stopCh != nil {
		close(stopCh)
		_ = watcher.Close()
		<-doneCh
	}

	if server == nil {
		return nil
	}

	w.logger.Info("Shutting down the API Server...")
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownGracePeriod)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		w.logger.WithError(err).Warn("Graceful shutdown expired, closing server")
		return errors.Wrap(server.Close(), "close api server")
	}

	w.logger.Info("API Server gracefully stopped")
	return nil
}

func (w *APIWorker) serveHTTP(rw http.ResponseWriter, r *http.Request) {
	w.handler.Load().(http.Handler).ServeHTTP(rw, r)
}

func (w *APIWorker) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = rw.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/project", func(rw http.ResponseWriter, _ *http.Request) {
			writeJSON(rw, map[string]interface{}{
				"name":    w.project.Name,
				"version": w.project.Version,
			})
		})

		r.Get("/workers", func(rw http.ResponseWriter, _ *http.Request) {
			writeJSON(rw, w.states())
		})
	})

	r.Get("/", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = rw.Write([]byte("<!DOCTYPE html><html><head><title>Meltano</title></head>" +
			"<body><h1>Meltano UI</h1></body></html>"))
	})

	return r
}

func writeJSON(rw http.ResponseWriter, data interface{}) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(rw).Encode(data); err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
	}
}

// watchConfig starts the reload loop over the project file and the
// secrets file. Caller holds w.mutex.
func (w *APIWorker) watchConfig() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, path := range []string{w.project.RootDir(config.ProjectFile), w.project.UICfgPath()} {
		// a missing secrets file is fine, it may appear later
		if err := watcher.Add(path); err != nil {
			w.logger.WithError(err).WithField("path", path).Debug("Not watching")
		}
	}

	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.reloadLoop(watcher, w.stopCh, w.doneCh)
	return nil
}

func (w *APIWorker) reloadLoop(watcher *fsnotify.Watcher, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			w.handler.Store(w.buildRouter())
			w.logger.WithField("path", event.Name).
				Info("Configuration change detected, router reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Configuration watcher error")

		case <-stopCh:
			return
		}
	}
}
