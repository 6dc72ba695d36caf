package config

import (
	"bytes"
	"context"

	"github.com/a8m/envsubst"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/sensing/logging"
	"go.viam.com/sensing/utils"
)

// A Watcher is responsible for watching for changes to a config from some source and delivering
// those changes to some destination.
type Watcher interface {
	Config() <-chan *Config
	Close() error
}

// NewWatcher returns a Watcher that re-reads the file cfg was read from whenever it is written.
// Unchanged contents and configs that fail validation are not delivered. Watching stops, and the
// Config channel is closed, once ctx is done or Close is called.
func NewWatcher(ctx context.Context, cfg *Config, logger logging.Logger) (Watcher, error) {
	path := cfg.ConfigFilePath
	if path == "" {
		return nil, errors.New("config was not read from a file")
	}
	last, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	guard := utils.NewGuard(func() { goutils.UncheckedError(fsw.Close()) })
	defer guard.OnFail()
	if err := fsw.Add(path); err != nil {
		return nil, err
	}
	w := &fsConfigWatcher{fsw: fsw, out: make(chan *Config)}
	w.workers = utils.NewStoppableWorkers(func(workerCtx context.Context) {
		defer close(w.out)
		watchCtx, cancel := context.WithCancel(workerCtx)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		w.watch(watchCtx, path, last, logger)
	})
	guard.Success()
	return w, nil
}

type fsConfigWatcher struct {
	fsw     *fsnotify.Watcher
	out     chan *Config
	workers utils.StoppableWorkers
}

func (w *fsConfigWatcher) watch(ctx context.Context, path string, last []byte, logger logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.CWarnw(ctx, "error watching config", "path", path, "error", err)
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			buf, err := envsubst.ReadFile(path)
			if err != nil {
				logger.CDebugw(ctx, "could not read changed config", "path", path, "error", err)
				continue
			}
			if bytes.Equal(buf, last) {
				continue
			}
			cfg, err := FromReader(path, bytes.NewReader(buf), logger)
			if err != nil {
				logger.CWarnw(ctx, "ignoring invalid config change", "path", path, "error", err)
				continue
			}
			last = buf
			select {
			case w.out <- cfg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Config returns the channel changed configs are delivered on.
func (w *fsConfigWatcher) Config() <-chan *Config {
	return w.out
}

func (w *fsConfigWatcher) Close() error {
	w.workers.Stop()
	return w.fsw.Close()
}
