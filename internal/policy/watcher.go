package policy

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ChangeHandler is invoked after a debounced change to a policy file.
type ChangeHandler func(path string)

// FileWatcher re-imports bootstrap policies when files in the policy
// directory change.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	dir     string
	handler ChangeHandler
	done    chan struct{}
}

func NewFileWatcher(dir string, handler ChangeHandler) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	fw := &FileWatcher{
		watcher: watcher,
		dir:     dir,
		handler: handler,
		done:    make(chan struct{}),
	}

	go fw.watch()

	return fw, nil
}

func (fw *FileWatcher) Close() error {
	close(fw.done)
	return fw.watcher.Close()
}

func (fw *FileWatcher) watch() {
	debounce := time.NewTimer(0)
	<-debounce.C // drain the initial fire

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fw.shouldHandle(event) {
				// Editors fire bursts of writes; collapse them.
				debounce.Reset(500 * time.Millisecond)
				go fw.waitAndHandle(debounce, event.Name)
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("policy watcher error")

		case <-fw.done:
			return
		}
	}
}

func (fw *FileWatcher) shouldHandle(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
		return false
	}
	return isPolicyFile(event.Name)
}

func (fw *FileWatcher) waitAndHandle(timer *time.Timer, path string) {
	select {
	case <-timer.C:
		fw.handler(path)
	case <-fw.done:
	}
}
