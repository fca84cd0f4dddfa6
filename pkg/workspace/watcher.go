package workspace

import (
	"errors"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch starts caching listings and invalidates the cache on any change in the root.
func (w *Workspace) Watch() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New("workspace is closed")
	}
	if w.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(w.root); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch workspace: %w", err)
	}

	w.watcher = watcher
	w.done = make(chan struct{})
	go w.eventLoop(watcher, w.done)

	log.Info().Str("path", w.root).Msg("Workspace watcher started")
	return nil
}

func (w *Workspace) eventLoop(watcher *fsnotify.Watcher, done <-chan struct{}) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("Workspace changed")
			w.invalidate()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
			w.invalidate()

		case <-done:
			return
		}
	}
}
