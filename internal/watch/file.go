package watch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"sweetexp/internal/logging"
)

// FileSignal ticks when a file changes.
type FileSignal struct {
	watcher *fsnotify.Watcher
	target  string
	t       *ticker
	logger  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// WatchFile watches path itself. Suited to files that are modified in place,
// such as kernel metric files.
func WatchFile(path string, logger *slog.Logger) (*FileSignal, error) {
	return newFileSignal(path, path, 0, logger)
}

// WatchFileInDir watches the directory holding path and ticks for events on
// path only, so editors that replace the file by rename are still seen.
// Events within debounce of each other produce one tick.
func WatchFileInDir(path string, debounce time.Duration, logger *slog.Logger) (*FileSignal, error) {
	return newFileSignal(filepath.Dir(path), path, debounce, logger)
}

func newFileSignal(watchPath, target string, debounce time.Duration, logger *slog.Logger) (*FileSignal, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(watchPath); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", watchPath, err)
	}
	s := &FileSignal{
		watcher: watcher,
		target:  filepath.Clean(target),
		t:       newTicker(debounce),
		logger:  logging.NewComponentLogger(logger, "watch"),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s, nil
}

func (s *FileSignal) loop() {
	defer s.wg.Done()
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) == 0 {
				continue
			}
			s.t.trigger()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Debug("watch error", logging.String("path", s.target), logging.Error(err))
		case <-s.done:
			return
		}
	}
}

// Path returns the watched file.
func (s *FileSignal) Path() string { return s.target }

func (s *FileSignal) C() <-chan struct{} { return s.t.ch }

// Close stops the watcher and waits for its goroutine.
func (s *FileSignal) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
		s.wg.Wait()
		s.t.stop()
	})
	return err
}
