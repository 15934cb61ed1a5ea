package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"testctl/pkg/logging"
)

// EventKind classifies a filesystem change.
type EventKind int

const (
	Created EventKind = iota
	Modified
	Deleted
	Moved
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Moved:
		return "moved"
	default:
		return "unknown"
	}
}

// Event is a change under the watched root. Dest is only set for Moved.
type Event struct {
	Kind EventKind
	Path string
	Dest string
}

const eventBuffer = 256

// Watcher reports changes below a root directory, registering new
// directories as they appear. It runs on its own goroutine.
type Watcher struct {
	root    string
	ignored map[string]bool
	fsw     *fsnotify.Watcher
	events  chan Event
	quit    chan struct{}
	done    chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a watcher for root. Hidden directories and directories named
// in ignoredDirs are not watched.
func New(root string, ignoredDirs []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	w := &Watcher{
		root:    filepath.Clean(root),
		ignored: make(map[string]bool, len(ignoredDirs)),
		fsw:     fsw,
		events:  make(chan Event, eventBuffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, d := range ignoredDirs {
		w.ignored[d] = true
	}

	if _, err := w.addTree(w.root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Events is closed once the watcher has stopped.
func (w *Watcher) Events() <-chan Event { return w.events }

// Start begins delivering events.
func (w *Watcher) Start() {
	w.startOnce.Do(func() {
		go w.run()
	})
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.quit)
		err = w.fsw.Close()
		started := true
		w.startOnce.Do(func() { started = false })
		if started {
			<-w.done
		} else {
			close(w.events)
		}
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	defer close(w.events)

	for {
		select {
		case <-w.quit:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn("Watcher", "Filesystem watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			if w.skipDir(ev.Name) {
				return
			}
			// files may land in a new directory before it is watched
			files, err := w.addTree(ev.Name)
			if err != nil {
				logging.Warn("Watcher", "Failed to watch new directory %s: %v", ev.Name, err)
			}
			for _, f := range files {
				w.send(Event{Kind: Created, Path: f})
			}
			return
		}
		w.send(Event{Kind: Created, Path: ev.Name})
	case ev.Has(fsnotify.Write):
		w.send(Event{Kind: Modified, Path: ev.Name})
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// the rename destination arrives as its own Create
		w.send(Event{Kind: Deleted, Path: ev.Name})
	default:
		logging.Debug("Watcher", "Ignoring %s", ev)
	}
}

func (w *Watcher) send(ev Event) {
	select {
	case w.events <- ev:
	case <-w.quit:
	}
}

// addTree watches dir and every directory below it, returning the regular
// files found on the way.
func (w *Watcher) addTree(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != w.root && w.skipDir(path) {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			return nil
		}
		if path != dir {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func (w *Watcher) skipDir(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") || w.ignored[name]
}
