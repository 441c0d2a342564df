package classify

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/skeinhq/skein/internal/logging"
)

// Watcher reloads a classification rules file when it changes on disk.
type Watcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchRules watches path and calls apply with each successfully loaded
// rule set. Parse failures keep the previous rules and log a warning.
func WatchRules(path string, apply func(*Rules), log *logging.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.Nop()
	}
	log = log.WithComponent("rules_watcher")

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create rules watcher: %w", err)
	}

	// Watch the directory so editors that replace the file atomically
	// still trigger an event.
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{watcher: fw, done: make(chan struct{})}
	base := filepath.Base(path)

	go func() {
		for {
			select {
			case <-w.done:
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				rules, err := LoadRules(path)
				if err != nil {
					log.Warn("rules reload failed", "path", path, "error", err.Error())
					continue
				}
				apply(rules)
				log.Info("rules reloaded", "path", path)
			case <-fw.Errors:
				// Keep watching.
			}
		}
	}()

	return w, nil
}

// Close stops the watcher goroutine and releases the file handle.
func (w *Watcher) Close() {
	close(w.done)
	w.watcher.Close()
}
