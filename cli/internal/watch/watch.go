// Package watch re-runs a callback whenever a file changes.
package watch

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chainq-dev/chainq/internal/debug"
)

const debounce = 300 * time.Millisecond

// Watcher invokes a callback when the watched file is written. Rapid
// successive writes are debounced into one invocation.
type Watcher struct {
	file     string
	callback func()
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// New watches the directory containing file; editors that replace the file
// on save would otherwise drop the watch.
func New(file string, callback func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{file: abs, callback: callback, watcher: fw, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	timer := time.NewTimer(debounce)
	timer.Stop()
	var pending <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if abs, err := filepath.Abs(event.Name); err != nil || abs != w.file {
				continue
			}
			timer.Reset(debounce)
			pending = timer.C
		case <-pending:
			pending = nil
			w.callback()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			debug.Error("watch error", "err", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
