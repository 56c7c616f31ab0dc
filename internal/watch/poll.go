package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// DefaultPollInterval is used when a PollNotifier is created without an interval.
const DefaultPollInterval = time.Second

type fileStamp struct {
	modTime time.Time
	size    int64
}

// PollNotifier detects changes by rescanning the roots on a fixed interval.
// It works where native notifications do not (network mounts, some containers).
type PollNotifier struct {
	interval time.Duration
	events   chan Event
	stop     chan struct{}
	once     sync.Once
}

var _ Notifier = (*PollNotifier)(nil)

// NewPollNotifier creates a polling notifier.
func NewPollNotifier(interval time.Duration) *PollNotifier {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollNotifier{
		interval: interval,
		events:   make(chan Event, eventBuffer),
		stop:     make(chan struct{}),
	}
}

// Start takes the initial snapshot and begins polling.
func (n *PollNotifier) Start(ctx context.Context, roots []string) error {
	roots = append([]string(nil), roots...)
	prev := snapshot(roots)
	go n.poll(ctx, roots, prev)
	return nil
}

// Events returns the change channel.
func (n *PollNotifier) Events() <-chan Event {
	return n.events
}

// Close stops polling.
func (n *PollNotifier) Close() error {
	n.once.Do(func() { close(n.stop) })
	return nil
}

func (n *PollNotifier) poll(ctx context.Context, roots []string, prev map[string]fileStamp) {
	defer close(n.events)

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stop:
			return
		case <-ticker.C:
			cur := snapshot(roots)
			for _, ev := range diff(prev, cur) {
				select {
				case n.events <- ev:
				case <-ctx.Done():
					return
				case <-n.stop:
					return
				}
			}
			prev = cur
		}
	}
}

// snapshot records every regular file below roots.
func snapshot(roots []string) map[string]fileStamp {
	files := make(map[string]fileStamp)
	for _, root := range roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr
			}
			if d.IsDir() {
				if path != root && skipDirs[d.Name()] {
					return fs.SkipDir
				}
				return nil
			}
			info, err := d.Info()
			if err != nil || !info.Mode().IsRegular() {
				return nil //nolint:nilerr
			}
			files[path] = fileStamp{modTime: info.ModTime(), size: info.Size()}
			return nil
		})
	}
	return files
}

// diff lists the changes between two snapshots, sorted by path.
func diff(prev, cur map[string]fileStamp) []Event {
	var events []Event
	for path, stamp := range cur {
		old, ok := prev[path]
		switch {
		case !ok:
			events = append(events, Event{Path: path, Op: OpCreate})
		case !old.modTime.Equal(stamp.modTime) || old.size != stamp.size:
			events = append(events, Event{Path: path, Op: OpWrite})
		}
	}
	for path := range prev {
		if _, ok := cur[path]; !ok {
			events = append(events, Event{Path: path, Op: OpRemove})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	return events
}
