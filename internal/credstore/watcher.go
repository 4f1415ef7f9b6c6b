package credstore

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"agentauth/pkg/logging"
)

// watchDebounceInterval coalesces bursts of file events (atomic save produces
// a create and a rename) into a single notification.
const watchDebounceInterval = 500 * time.Millisecond

// defaultPollInterval is the fallback polling cadence when fsnotify is
// unavailable.
const defaultPollInterval = 10 * time.Second

// Watcher observes credential directories so a long-running daemon notices
// credentials written by another process (e.g. a CLI login) without polling
// the store on every request.
type Watcher struct {
	mu sync.Mutex

	dir          string
	recursive    bool
	pollInterval time.Duration
	onChange     func()

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	lastModTimes map[string]time.Time

	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// NewWatcher creates a watcher for the given agent's credential directory.
// The directory is created if missing so it can be watched immediately.
func (s *Store) NewWatcher(agentID string, onChange func()) (*Watcher, error) {
	dir := s.agentDir(agentID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &Watcher{
		dir:          dir,
		pollInterval: defaultPollInterval,
		onChange:     onChange,
		lastModTimes: make(map[string]time.Time),
	}, nil
}

// NewRootWatcher creates a watcher covering every agent's credential
// directory under the store root, including agent directories created after
// the watcher starts. The daemon runs one of these for its whole lifetime.
func (s *Store) NewRootWatcher(onChange func()) (*Watcher, error) {
	if err := os.MkdirAll(s.rootDir, 0700); err != nil {
		return nil, err
	}

	return &Watcher{
		dir:          s.rootDir,
		recursive:    true,
		pollInterval: defaultPollInterval,
		onChange:     onChange,
		lastModTimes: make(map[string]time.Time),
	}, nil
}

// Start begins watching. Falls back to polling when fsnotify is unavailable.
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
		logging.Warn("CredWatcher", "fsnotify not available, falling back to polling: %v", err)
		go w.pollForChanges()
		return nil
	}

	w.fsWatcher = watcher

	if err := w.fsWatcher.Add(w.dir); err != nil {
		logging.Warn("CredWatcher", "Failed to watch %s, falling back to polling: %v", w.dir, err)
		w.fsWatcher.Close()
		w.fsWatcher = nil
		go w.pollForChanges()
		return nil
	}

	// fsnotify is not recursive: a root watcher also registers each agent's
	// subdirectory, and picks up new ones as they are created.
	if w.recursive {
		if entries, err := os.ReadDir(w.dir); err == nil {
			for _, entry := range entries {
				if entry.IsDir() {
					_ = w.fsWatcher.Add(filepath.Join(w.dir, entry.Name()))
				}
			}
		}
	}

	eventsCh := w.fsWatcher.Events
	errorsCh := w.fsWatcher.Errors

	go w.processEvents(eventsCh, errorsCh)

	logging.Debug("CredWatcher", "Watching %s for credential changes", w.dir)
	return nil
}

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
			logging.Error("CredWatcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	if filepath.Ext(event.Name) != ".json" {
		// A new agent directory under the root needs its own watch before
		// credential files inside it produce events.
		if w.recursive && event.Op&fsnotify.Create != 0 {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				w.mu.Lock()
				if w.fsWatcher != nil {
					_ = w.fsWatcher.Add(event.Name)
				}
				w.mu.Unlock()
				w.triggerDebounced()
			}
		}
		return
	}

	w.triggerDebounced()
}

func (w *Watcher) triggerDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(watchDebounceInterval, func() {
		w.mu.Lock()
		running := w.running
		callback := w.onChange
		w.mu.Unlock()

		if running && callback != nil {
			callback()
		}
	})
}

// pollForChanges implements fallback polling when fsnotify is not available.
func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.snapshotModTimes()

	for {
		select {
		case <-w.stopCh:
			return

		case <-ticker.C:
			if w.checkForChanges() {
				logging.Debug("CredWatcher", "Credential change detected via polling")
				w.triggerDebounced()
			}
		}
	}
}

// listFiles returns the mod times of every credential file under the watched
// tree, keyed by path relative to the watch root. Root watchers descend one
// level into the agent directories.
func (w *Watcher) listFiles() map[string]time.Time {
	files := make(map[string]time.Time)

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return files
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if !w.recursive {
				continue
			}
			subEntries, err := os.ReadDir(filepath.Join(w.dir, entry.Name()))
			if err != nil {
				continue
			}
			for _, sub := range subEntries {
				if info, err := sub.Info(); err == nil && !sub.IsDir() {
					files[filepath.Join(entry.Name(), sub.Name())] = info.ModTime()
				}
			}
			continue
		}
		if info, err := entry.Info(); err == nil {
			files[entry.Name()] = info.ModTime()
		}
	}
	return files
}

func (w *Watcher) snapshotModTimes() {
	w.lastModTimes = w.listFiles()
}

func (w *Watcher) checkForChanges() bool {
	current := w.listFiles()

	changed := false
	for name, modTime := range current {
		last, exists := w.lastModTimes[name]
		if !exists || modTime.After(last) {
			changed = true
		}
	}

	// Deleted files count as changes too.
	for name := range w.lastModTimes {
		if _, exists := current[name]; !exists {
			changed = true
		}
	}

	w.lastModTimes = current
	return changed
}

// Stop terminates the watcher. Safe to call more than once.
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
