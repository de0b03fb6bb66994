package workers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/meltanolabs/meltano-ui/config"
)

// ModelFileSuffix marks project model definition files.
const ModelFileSuffix = ".m5o.yml"

// CompiledModelsFile is the bundle written into the project run dir.
const CompiledModelsFile = "models.json"

const compileDebounce = 500 * time.Millisecond

// CompilerWorker keeps the compiled project models fresh: it compiles
// once on Start, then watches the model dir and recompiles whenever a
// definition changes. Successful compile cycles are broadcast to
// subscribers; ticks are coalesced, so a slow consumer sees at least
// one tick after the latest cycle.
type CompilerWorker struct {
	logger  *logrus.Entry
	project *config.Project

	mutex       sync.Mutex
	subscribers []chan struct{}
	watcher     *fsnotify.Watcher
	stopCh      chan struct{}
	doneCh      chan struct{}
	started     bool
}

func NewCompilerWorker(logger *logrus.Entry, project *config.Project) *CompilerWorker {
	return &CompilerWorker{
		logger:  logger.WithField("worker", "meltano-compiler"),
		project: project,
	}
}

// Subscribe returns a channel receiving a coalesced tick after every
// successful compile cycle. Subscribe before Start.
func (w *CompilerWorker) Subscribe() <-chan struct{} {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	ch := make(chan struct{}, 1)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

func (w *CompilerWorker) Start() error {
	w.mutex.Lock()
	if w.started {
		w.mutex.Unlock()
		return errors.New("model compiler: already started")
	}
	w.started = true
	w.mutex.Unlock()

	if err := w.compile(); err != nil {
		return errors.Wrap(err, "initial compile")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "model watcher")
	}
	if err := watchDirRecursive(watcher, w.project.ModelDir()); err != nil {
		_ = watcher.Close()
		return errors.Wrap(err, "watch model dir")
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	w.mutex.Lock()
	w.watcher = watcher
	w.stopCh = stopCh
	w.doneCh = doneCh
	w.mutex.Unlock()

	go w.watchLoop(watcher, stopCh, doneCh)
	return nil
}

func (w *CompilerWorker) Stop() error {
	w.mutex.Lock()
	watcher, stopCh, doneCh := w.watcher, w.stopCh, w.doneCh
	w.watcher = nil
	w.stopCh = nil
	w.mutex.Unlock()

	if stopCh == nil {
		return nil
	}

	close(stopCh)
	err := watcher.Close()
	<-doneCh
	return errors.Wrap(err, "close model watcher")
}

func (w *CompilerWorker) watchLoop(watcher *fsnotify.Watcher, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	var pending <-chan time.Time
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(compileDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Model watcher error")

		case <-pending:
			pending = nil
			if err := w.compile(); err != nil {
				w.logger.WithError(err).Error("Model compilation failed")
			}

		case <-stopCh:
			return
		}
	}
}

// compile parses every model definition and writes the merged bundle
// into the run dir, then notifies subscribers.
func (w *CompilerWorker) compile() error {
	models, err := loadModels(w.project.ModelDir())
	if err != nil {
		return err
	}

	raw, err := json.MarshalIndent(models, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode models")
	}

	if err := os.MkdirAll(w.project.RunDir(), 0755); err != nil {
		return errors.Wrap(err, "create run dir")
	}

	out := filepath.Join(w.project.RunDir(), CompiledModelsFile)
	if err := os.WriteFile(out, raw, 0644); err != nil {
		return errors.Wrap(err, "write compiled models")
	}

	w.logger.WithField("models", len(models)).Info("Project models compiled")
	w.notify()
	return nil
}

func (w *CompilerWorker) notify() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	for _, ch := range w.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// loadModels parses all model files under `dir`, sorted by model name.
// A missing model dir is not an error, just an empty project.
func loadModels(dir string) ([]map[string]interface{}, error) {
	models := []map[string]interface{}{}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ModelFileSuffix) {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, filepath.Base(path))
		}

		var model map[string]interface{}
		if err := yaml.Unmarshal(raw, &model); err != nil {
			return errors.Wrap(err, filepath.Base(path))
		}
		if model["name"] == nil {
			return errors.Errorf("%s: model name is required", filepath.Base(path))
		}

		models = append(models, model)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Slice(models, func(i, j int) bool {
		left, _ := models[i]["name"].(string)
		right, _ := models[j]["name"].(string)
		return left < right
	})
	return models, nil
}

// watchDirRecursive registers `root` and every subdirectory with the
// watcher; fsnotify only watches single directories.
func watchDirRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			if err := watcher.Add(path); err != nil {
				return err
			}
		}
		return nil
	})
}
