package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches the configuration file and reloads the manager when
// it changes. Editors that replace the file trigger a Create on the
// directory, so the directory is watched rather than the file.
type ConfigWatcher struct {
	configManager *ConfigManager
	watcher       *fsnotify.Watcher
	logger        Logger
	watchPath     string
	mu            sync.Mutex
	stopChan      chan struct{}
	stopOnce      sync.Once
	debounceTime  time.Duration
	pending       *time.Timer
}

// NewConfigWatcher creates a watcher for the manager's config file
func NewConfigWatcher(configManager *ConfigManager, logger Logger) (*ConfigWatcher, error) {
	path := configManager.ConfigPath()
	if path == "" {
		return nil, fmt.Errorf("no config path set")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", filepath.Dir(abs), err)
	}

	return &ConfigWatcher{
		configManager: configManager,
		watcher:       watcher,
		logger:        logger,
		watchPath:     abs,
		stopChan:      make(chan struct{}),
		debounceTime:  500 * time.Millisecond,
	}, nil
}

// SetDebounceTime sets how long the watcher waits for writes to settle
func (cw *ConfigWatcher) SetDebounceTime(duration time.Duration) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.debounceTime = duration
}

// Start runs the watch loop in the background
func (cw *ConfigWatcher) Start() {
	cw.logger.Info("config watcher started", "path", cw.watchPath)
	go cw.watchLoop()
}

// Stop stops the watcher. It is safe to call more than once.
func (cw *ConfigWatcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.stopChan)
		cw.mu.Lock()
		if cw.pending != nil {
			cw.pending.Stop()
		}
		cw.mu.Unlock()
		if err := cw.watcher.Close(); err != nil {
			cw.logger.Warn("error closing config watcher", "error", err)
		}
	})
}

func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleFileEvent(event)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("config watcher error", "error", err)

		case <-cw.stopChan:
			return
		}
	}
}

// handleFileEvent schedules a reload, collapsing bursts of writes into one
func (cw *ConfigWatcher) handleFileEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	name, err := filepath.Abs(event.Name)
	if err != nil || name != cw.watchPath {
		return
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.pending != nil {
		cw.pending.Stop()
	}
	cw.pending = time.AfterFunc(cw.debounceTime, cw.reload)
}

func (cw *ConfigWatcher) reload() {
	select {
	case <-cw.stopChan:
		return
	default:
	}

	if _, err := os.Stat(cw.watchPath); os.IsNotExist(err) {
		cw.logger.Warn("config file no longer exists", "path", cw.watchPath)
		return
	}

	if err := cw.configManager.Reload(); err != nil {
		cw.logger.Error("failed to reload configuration, keeping previous values", "path", cw.watchPath, "error", err)
		return
	}
	cw.logger.Info("configuration reloaded", "path", cw.watchPath)
}
