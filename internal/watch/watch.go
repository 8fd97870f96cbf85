// Package watch reports changes to a set of files using fsnotify, with a
// stat-polling fallback when native notifications are unavailable.
//
// Directories are watched rather than files, so editors that replace a file
// by rename are still seen. Bursts of changes coalesce into one pending
// event.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the stat period used in polling mode.
const DefaultPollInterval = 2 * time.Second

// Options configures [New].
type Options struct {
	// Dirs are the directories to watch, non-recursively. Missing
	// directories are skipped.
	Dirs []string
	// Match reports whether a changed path is of interest. Nil matches
	// everything.
	Match func(path string) bool
	// PollInterval is the stat period in polling mode.
	PollInterval time.Duration
	// Logger receives mode switches. Defaults to [slog.Default].
	Logger *slog.Logger
	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher delivers a coalesced event whenever a matching file in one of its
// directories is written, created or renamed into place.
type Watcher struct {
	dirs         []string
	match        func(string) bool
	pollInterval time.Duration
	logger       *slog.Logger

	// events is buffered to 1 so back-to-back changes coalesce.
	events chan struct{}
	// done is closed by [Watcher.Close].
	done chan struct{}
	once sync.Once

	// mu guards fsw, which is nil while polling.
	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	polling atomic.Bool
	wg      sync.WaitGroup
}

// New starts watching. It fails only when none of opts.Dirs exists.
func New(opts Options) (*Watcher, error) {
	w := &Watcher{
		match:        opts.Match,
		pollInterval: opts.PollInterval,
		logger:       opts.Logger,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	if w.match == nil {
		w.match = func(string) bool { return true }
	}
	if w.pollInterval <= 0 {
		w.pollInterval = DefaultPollInterval
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	for _, d := range opts.Dirs {
		if info, err := os.Stat(d); err == nil && info.IsDir() {
			w.dirs = append(w.dirs, filepath.Clean(d))
		}
	}
	if len(w.dirs) == 0 {
		return nil, fmt.Errorf("watch: none of %v is a directory", opts.Dirs)
	}

	if opts.ForcePolling {
		w.startPolling()
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	for _, d := range w.dirs {
		if err := fsw.Add(d); err != nil {
			w.logger.Info("cannot watch directory, falling back to polling", "dir", d, "error", err)
			fsw.Close()
			w.startPolling()
			return w, nil
		}
	}
	w.fsw = fsw
	w.wg.Add(1)
	go w.watch(fsw)
	return w, nil
}

// Events returns the coalesced change channel.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Run calls trigger once per coalesced change until ctx is done or the
// watcher is closed.
func (w *Watcher) Run(ctx context.Context, trigger func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.events:
			trigger()
		}
	}
}

// Close stops the watcher and waits for its goroutines. It is idempotent.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.fsw != nil {
			if cerr := w.fsw.Close(); cerr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", cerr)
			}
			w.fsw = nil
		}
		w.mu.Unlock()
		w.wg.Wait()
	})
	return err
}

// ///////////////////////////////////////////////
// fsnotify
// ///////////////////////////////////////////////

// watch forwards matching events. On an fsnotify error it closes the native
// watcher and switches to polling.
func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if w.match(event.Name) {
					w.notify()
				}
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Some events were lost; assume one of them mattered.
				w.notify()
				continue
			}
			w.logger.Info("fsnotify error, switching to polling", "error", err)
			w.mu.Lock()
			if w.fsw == fsw {
				fsw.Close()
				w.fsw = nil
			}
			w.mu.Unlock()
			select {
			case <-w.done:
			default:
				w.startPolling()
			}
			return
		}
	}
}

// ///////////////////////////////////////////////
// Polling
// ///////////////////////////////////////////////

func (w *Watcher) startPolling() {
	w.polling.Store(true)
	w.wg.Add(1)
	go w.poll()
}

// poll stats the matching files every interval and notifies when the newest
// modification time advances or the set of files changes.
func (w *Watcher) poll() {
	defer w.wg.Done()
	last, lastCount := w.scan()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			mod, count := w.scan()
			if mod.After(last) || count != lastCount {
				last, lastCount = mod, count
				w.notify()
			}
		}
	}
}

// scan returns the newest modification time and number of matching files.
func (w *Watcher) scan() (time.Time, int) {
	var latest time.Time
	count := 0
	for _, d := range w.dirs {
		entries, err := os.ReadDir(d)
		if err != nil {
			continue
		}
		for _, e := range entries {
			path := filepath.Join(d, e.Name())
			if e.IsDir() || !w.match(path) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			count++
			if info.ModTime().After(latest) {
				latest = info.ModTime()
			}
		}
	}
	return latest, count
}

// notify queues one event unless one is already pending.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
