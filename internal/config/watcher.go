package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"agentauth/pkg/logging"
)

// WatcherConfig holds configuration for the config file watcher.
type WatcherConfig struct {
	// ConfigDir is the directory containing config.yaml.
	ConfigDir string

	// WatchInterval is the fallback polling interval when fsnotify is not
	// available.
	WatchInterval time.Duration

	// OnChange is called when config.yaml changes.
	OnChange func()
}

// DefaultWatchInterval is the fallback polling interval.
const DefaultWatchInterval = 30 * time.Second

// DefaultDebounceInterval is the time to wait before triggering a reload
// after the last file change is detected.
const DefaultDebounceInterval = 500 * time.Millisecond

// Watcher monitors config.yaml for changes so long-running processes pick up
// provider credential rotation without a restart. It uses fsnotify with a
// fallback to polling for environments where fsnotify is not available.
type Watcher struct {
	mu sync.Mutex

	config WatcherConfig

	// fsWatcher is the fsnotify watcher (may be nil if fsnotify is unavailable)
	fsWatcher *fsnotify.Watcher

	// stopCh signals the watcher to stop
	stopCh chan struct{}

	// running indicates if the watcher is active
	running bool

	// lastModTime tracks the last modification time for fallback polling
	lastModTime time.Time

	// debounceTimer helps prevent rapid successive reloads
	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// NewWatcher creates a new config file watcher.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.WatchInterval == 0 {
		config.WatchInterval = DefaultWatchInterval
	}

	return &Watcher{
		config: config,
	}
}

// Start begins watching for config changes.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.stopCh = make(chan struct{})
	w.running = true

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("ConfigWatcher", "fsnotify not available, falling back to polling: %v", err)
		go w.pollForChanges()
		return nil
	}

	w.fsWatcher = watcher

	if err := w.fsWatcher.Add(w.config.ConfigDir); err != nil {
		logging.Warn("ConfigWatcher", "Failed to watch directory %s, falling back to polling: %v",
			w.config.ConfigDir, err)
		w.fsWatcher.Close()
		w.fsWatcher = nil
		go w.pollForChanges()
		return nil
	}

	// Capture channels before releasing lock to avoid race conditions
	eventsCh := w.fsWatcher.Events
	errorsCh := w.fsWatcher.Errors

	go w.processEvents(eventsCh, errorsCh)

	logging.Info("ConfigWatcher", "Started watching %s for configuration changes", w.config.ConfigDir)
	return nil
}

// processEvents handles fsnotify events.
// The channels are passed as parameters to avoid race conditions with Stop().
func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("ConfigWatcher", err, "fsnotify error")
		}
	}
}

// handleEvent processes a single fsnotify event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != configFileName {
		return
	}

	// Only handle write and create events. Editors that replace the file
	// atomically produce a create.
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	logging.Debug("ConfigWatcher", "Configuration file changed: %s", event.Name)
	w.triggerReloadDebounced()
}

// triggerReloadDebounced triggers a reload after a debounce period.
// This prevents multiple rapid reloads while an editor is still writing.
func (w *Watcher) triggerReloadDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(DefaultDebounceInterval, func() {
		w.mu.Lock()
		running := w.running
		callback := w.config.OnChange
		w.mu.Unlock()

		if running && callback != nil {
			callback()
		}
	})
}

// pollForChanges implements fallback polling when fsnotify is not available.
func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(w.config.WatchInterval)
	defer ticker.Stop()

	w.updateModTime()

	for {
		select {
		case <-w.stopCh:
			return

		case <-ticker.C:
			if w.checkForChanges() {
				logging.Debug("ConfigWatcher", "Configuration change detected via polling")
				w.triggerReloadDebounced()
			}
		}
	}
}

// updateModTime records the current modification time of config.yaml.
func (w *Watcher) updateModTime() {
	file := filepath.Join(w.config.ConfigDir, configFileName)
	if info, err := os.Stat(file); err == nil {
		w.lastModTime = info.ModTime()
	}
}

// checkForChanges reports whether config.yaml changed since the last poll.
func (w *Watcher) checkForChanges() bool {
	file := filepath.Join(w.config.ConfigDir, configFileName)
	info, err := os.Stat(file)
	if err != nil {
		return false
	}

	currentModTime := info.ModTime()
	changed := !w.lastModTime.IsZero() && currentModTime.After(w.lastModTime)
	w.lastModTime = currentModTime
	return changed
}

// Stop gracefully stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		err := w.fsWatcher.Close()
		w.fsWatcher = nil
		return err
	}

	return nil
}
