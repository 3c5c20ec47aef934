package scan

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates the scanner's caches when a search path changes.
type Watcher struct {
	fs   *fsnotify.Watcher
	done chan struct{}
}

// Watch starts watching every existing search directory.
func Watch(s *Scanner, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, loadError(err, "")
	}
	for _, dir := range s.Dirs() {
		if err := fsw.Add(dir); err != nil {
			logger.Warn("cannot watch plugin path", "dir", dir, "err", err)
		}
	}

	w := &Watcher{fs: fsw, done: make(chan struct{})}
	go func() {
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0 {
					logger.Debug("plugin path changed, invalidating cache", "path", ev.Name)
					s.Invalidate()
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Warn("plugin path watcher error", "err", err)
			case <-w.done:
				return
			}
		}
	}()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}
