// Package watch re-runs build passes when template files change.
package watch

import (
	"context"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of a filesystem change.
type Op int

const (
	OpCreate Op = iota + 1
	OpWrite
	OpRemove
	OpRename
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	}
	return "unknown"
}

// Event is a change to one path.
type Event struct {
	Path string
	Op   Op
}

// Notifier delivers filesystem changes below a set of root directories.
type Notifier interface {
	// Start begins watching. The events channel is closed when ctx is done
	// or the notifier is closed.
	Start(ctx context.Context, roots []string) error
	Events() <-chan Event
	Close() error
}

// skipDirs are never watched.
var skipDirs = map[string]bool{
	".git":         true,
	".jj":          true,
	"node_modules": true,
}

const eventBuffer = 100

// FSNotifier watches directories recursively with fsnotify. Directories
// created after Start are added as they appear.
type FSNotifier struct {
	watcher *fsnotify.Watcher
	events  chan Event
	logger  *slog.Logger
	once    sync.Once
}

var _ Notifier = (*FSNotifier)(nil)

// NewFSNotifier creates an fsnotify based notifier.
func NewFSNotifier(logger *slog.Logger) (*FSNotifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FSNotifier{
		watcher: w,
		events:  make(chan Event, eventBuffer),
		logger:  logger,
	}, nil
}

// Start adds every directory below roots and starts forwarding events.
func (n *FSNotifier) Start(ctx context.Context, roots []string) error {
	for _, root := range roots {
		for dir := range walkDirs(root) {
			if err := n.watcher.Add(dir); err != nil {
				return err
			}
		}
	}
	go n.process(ctx)
	return nil
}

// Events returns the change channel.
func (n *FSNotifier) Events() <-chan Event {
	return n.events
}

// Close stops watching and releases the underlying watcher.
func (n *FSNotifier) Close() error {
	var err error
	n.once.Do(func() { err = n.watcher.Close() })
	return err
}

// walkDirs yields root and every directory below it, skipping skipDirs.
func walkDirs(root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// unreadable directories are not watched
				return nil //nolint:nilerr
			}
			if !d.IsDir() {
				return nil
			}
			if path != root && skipDirs[d.Name()] {
				return fs.SkipDir
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func (n *FSNotifier) process(ctx context.Context) {
	defer close(n.events)

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			ev, ok := convert(raw)
			if !ok {
				continue
			}

			if ev.Op == OpCreate {
				if info, err := os.Stat(ev.Path); err == nil && info.IsDir() && !skipDirs[info.Name()] {
					for dir := range walkDirs(ev.Path) {
						_ = n.watcher.Add(dir)
					}
				}
			}

			select {
			case n.events <- ev:
			case <-ctx.Done():
				return
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Warn("file watcher error", "error", err)
		}
	}
}

func convert(raw fsnotify.Event) (Event, bool) {
	switch {
	case raw.Has(fsnotify.Create):
		return Event{Path: raw.Name, Op: OpCreate}, true
	case raw.Has(fsnotify.Write):
		return Event{Path: raw.Name, Op: OpWrite}, true
	case raw.Has(fsnotify.Remove):
		return Event{Path: raw.Name, Op: OpRemove}, true
	case raw.Has(fsnotify.Rename):
		return Event{Path: raw.Name, Op: OpRename}, true
	}
	return Event{}, false
}
