package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/apideck-libraries/vault-core-sub000/pkg/logging"
)

// DefaultDebounceInterval is how long the watcher waits after the last
// write before reloading, so editors that write in several steps trigger a
// single reload.
const DefaultDebounceInterval = 500 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk, so a
// long-lived embedding host picks up endpoint or origin edits without a
// restart.
type Watcher struct {
	mu sync.Mutex

	configPath string
	onChange   func(VaultConfig)

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for the config directory. onChange receives
// every successfully reloaded configuration.
func NewWatcher(configPath string, onChange func(VaultConfig)) *Watcher {
	return &Watcher{
		configPath: configPath,
		onChange:   onChange,
	}
}

// Start begins watching. Safe to call once.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsWatcher.Add(w.configPath); err != nil {
		fsWatcher.Close()
		return err
	}

	w.fsWatcher = fsWatcher
	w.stopCh = make(chan struct{})
	w.running = true

	go w.loop()
	logging.Debug("ConfigWatcher", "Watching %s for configuration changes", w.configPath)
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("ConfigWatcher", "Watch error: %v", err)
		case <-w.stopCh:
			return
		}
	}
}

// scheduleReload debounces rapid successive writes into one reload.
func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(DefaultDebounceInterval, func() {
		cfg, err := LoadConfig(w.configPath)
		if err != nil {
			logging.Warn("ConfigWatcher", "Ignoring invalid configuration update: %v", err)
			return
		}
		w.onChange(cfg)
	})
}

// Stop stops watching. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.stopCh)
	_ = w.fsWatcher.Close()
	w.running = false

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()
}
