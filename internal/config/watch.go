package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher re-reads the messaging policy section when the config file
// changes on disk. Scheduler timings are fixed for the process lifetime;
// only policy that is safe to flip mid-flight is hot-reloaded.
type Watcher struct {
	mu        sync.RWMutex
	path      string
	logger    *zap.Logger
	messaging MessagingConfig
	onChange  func(MessagingConfig)
	fsw       *fsnotify.Watcher
	done      chan struct{}
}

// NewWatcher starts watching the config file's directory. The initial
// messaging policy is taken from cfg.
func NewWatcher(path string, cfg *Config, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files by rename, which drops a
	// watch on the file itself.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:      path,
		logger:    logger.Named("config"),
		messaging: cfg.Messaging,
		fsw:       fsw,
		done:      make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// OnChange registers a callback invoked with the new messaging policy
// after each successful reload.
func (w *Watcher) OnChange(fn func(MessagingConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Messaging returns the current messaging policy.
func (w *Watcher) Messaging() MessagingConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.messaging
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous policy", zap.Error(err))
		return
	}
	w.mu.Lock()
	w.messaging = cfg.Messaging
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn(cfg.Messaging)
	}
	w.logger.Info("messaging policy reloaded",
		zap.String("quiet_hours", cfg.Messaging.QuietHoursStart+"-"+cfg.Messaging.QuietHoursEnd),
		zap.Int("daily_quota", cfg.Messaging.DailyAlertQuota))
}
