// Package watch rebuilds schemas as config files change.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"autoschema/internal/runner"
)

// DefaultDelay is how long a path must stay quiet before it is rebuilt.
const DefaultDelay = 200 * time.Millisecond

// Processor rebuilds the schemas of a batch of config files.
type Processor interface {
	Process(ctx context.Context, files []string, force bool) (*runner.Report, error)
}

// Watcher feeds changed config files under a directory to a Processor.
// Changes are debounced per path and batches are processed one at a time,
// so no two rebuilds ever write the same schema file concurrently.
type Watcher struct {
	dir         string
	proc        Processor
	delay       time.Duration
	stopOnError bool
	log         zerolog.Logger
	ready       chan struct{}

	// seen is owned by the consumer goroutine.
	seen map[string]stamp
}

type stamp struct {
	mod  int64
	size int64
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay sets the debounce delay.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) { w.delay = d }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(w *Watcher) { w.log = log }
}

// WithStopOnError makes Run return the first processing error instead of
// logging it.
func WithStopOnError(stop bool) Option {
	return func(w *Watcher) { w.stopOnError = stop }
}

// New creates a Watcher for the config files under dir.
func New(dir string, p Processor, opts ...Option) *Watcher {
	w := &Watcher{
		dir:   dir,
		proc:  p,
		delay: DefaultDelay,
		log:   zerolog.Nop(),
		ready: make(chan struct{}),
		seen:  map[string]stamp{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ready is closed once the initial directory watches are in place.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches until ctx is done. It returns nil on cancellation and the
// processing error when stop-on-error is set.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if _, err := w.addTree(fsw, w.dir); err != nil {
		return err
	}
	close(w.ready)
	w.log.Info().Str("dir", w.dir).Msg("watching for changes in the config files")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fired := make(chan string)
	work := make(chan []string)
	errc := make(chan error, 1)
	go w.consume(ctx, work, errc)

	timers := map[string]*time.Timer{}
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	schedule := func(path string) {
		if t, ok := timers[path]; ok {
			t.Reset(w.delay)
			return
		}
		timers[path] = time.AfterFunc(w.delay, func() {
			select {
			case fired <- path:
			case <-ctx.Done():
			}
		})
	}

	queued := map[string]bool{}
	for {
		var out chan []string
		var batch []string
		if len(queued) > 0 {
			out = work
			batch = sortedKeys(queued)
		}

		select {
		case <-ctx.Done():
			return nil

		case err := <-errc:
			return err

		case out <- batch:
			queued = map[string]bool{}

		case path := <-fired:
			delete(timers, path)
			queued[path] = true

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					files, err := w.addTree(fsw, ev.Name)
					if err != nil {
						w.log.Warn().Err(err).Str("dir", ev.Name).Msg("unable to watch directory")
					}
					for _, f := range files {
						schedule(f)
					}
					continue
				}
			}
			if runner.IsConfigFile(ev.Name) && (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				schedule(ev.Name)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("file watcher error")
		}
	}
}

// consume processes batches one at a time.
func (w *Watcher) consume(ctx context.Context, work <-chan []string, errc chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-work:
			if err := w.handle(ctx, batch); err != nil {
				errc <- err
				return
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, batch []string) error {
	var changed []string
	for _, path := range batch {
		st, ok := stampOf(path)
		if !ok {
			continue
		}
		if prev, ok := w.seen[path]; ok && prev == st {
			continue
		}
		changed = append(changed, path)
	}
	if len(changed) == 0 {
		return nil
	}

	report, err := w.proc.Process(ctx, changed, true)
	for _, path := range changed {
		if st, ok := stampOf(path); ok {
			w.seen[path] = st
		}
	}
	if err != nil {
		if w.stopOnError {
			return err
		}
		w.log.Error().Err(err).Strs("files", changed).Msg("rebuild failed")
		return nil
	}
	w.log.Info().
		Int("written", report.Count(runner.StatusWritten)).
		Int("partial", report.Count(runner.StatusPartial)).
		Msg("schemas updated")
	return nil
}

// addTree watches dir and its subdirectories, skipping .venv, and returns
// the config files already present.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && d.Name() == ".venv" {
				return filepath.SkipDir
			}
			return fsw.Add(path)
		}
		if runner.IsConfigFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func stampOf(path string) (stamp, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return stamp{}, false
	}
	return stamp{mod: info.ModTime().UnixNano(), size: info.Size()}, true
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
