// Package watch reports audio files appearing in or leaving watched directories.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
)

// Op is the kind of change reported for a file.
type Op int

const (
	Added Op = iota
	Removed
)

func (o Op) String() string {
	if o == Removed {
		return "removed"
	}
	return "added"
}

// Event is a settled change to one file.
type Event struct {
	Path string
	Op   Op
}

// DefaultSettle is how long a file must stay unwritten before it is reported.
const DefaultSettle = time.Second

// Watcher watches directories and emits events for files accepted by a filter.
// New subdirectories are watched as they appear.
type Watcher struct {
	fs     *fsnotify.Watcher
	accept func(path string) bool
	settle time.Duration
	events chan Event
}

// New starts watching dirs. accept decides which files are reported;
// nil accepts everything.
func New(dirs []string, accept func(path string) bool, settle time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watcher")
	}
	if accept == nil {
		accept = func(string) bool { return true }
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	w := &Watcher{
		fs:     fw,
		accept: accept,
		settle: settle,
		events: make(chan Event, 64),
	}
	for _, dir := range dirs {
		if err := w.addTree(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Events returns the channel events are delivered on. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run processes file system notifications until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.fs.Close()

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.settle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev, pending)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			zlog.Warn().Err(err).Msg("watch: notification error")

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)
				if st, err := os.Stat(path); err != nil || !st.Mode().IsRegular() {
					continue
				}
				if !w.emit(ctx, Event{Path: path, Op: Added}) {
					return nil
				}
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event, pending map[string]time.Time) {
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		if ev.Has(fsnotify.Create) {
			if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
				if err := w.addTree(ev.Name); err != nil {
					zlog.Warn().Err(err).Msgf("watch: failed to watch new directory: path=%s", ev.Name)
				}
				return
			}
		}
		if w.accept(ev.Name) {
			pending[ev.Name] = time.Now()
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if _, wasPending := pending[ev.Name]; wasPending {
			delete(pending, ev.Name)
			return
		}
		if w.accept(ev.Name) {
			w.emit(ctx, Event{Path: ev.Name, Op: Removed})
		}
	}
}

func (w *Watcher) emit(ctx context.Context, ev Event) bool {
	zlog.Debug().Msgf("watch: %s: path=%s", ev.Op, ev.Path)
	select {
	case w.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, "failed to walk %s", path)
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fs.Add(path); err != nil {
			return errors.Wrapf(err, "failed to watch %s", path)
		}
		return nil
	})
}
