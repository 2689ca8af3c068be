// Package inbox runs tasks dropped into a directory. Each *.task file holds
// one task description; once it stops changing it is dispatched, and the
// outcome is written next to it as <name>.status or <name>.error before the
// task file is removed.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"taskagent/internal/dispatch"
	"taskagent/internal/logging"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// TaskExt marks files the watcher picks up.
const TaskExt = ".task"

// Runner dispatches one task description.
type Runner interface {
	Dispatch(ctx context.Context, text string) (*dispatch.Result, error)
}

// Stats counts processed tasks.
type Stats struct {
	Succeeded int
	Failed    int
	LastTask  string
	LastTime  time.Time
}

// Watcher watches a single directory.
type Watcher struct {
	dir      string
	runner   Runner
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
	stats   Stats
}

// New creates a watcher for dir. debounce is how long a task file must stay
// unchanged before it runs; zero selects 250ms.
func New(dir string, runner Runner, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{
		dir:      dir,
		runner:   runner,
		debounce: debounce,
		pending:  make(map[string]time.Time),
	}
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run processes task files already present, then watches for new ones
// until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	log := logging.Get(logging.CategoryInbox)
	log.Info("watching inbox", zap.String("dir", w.dir))

	existing, err := filepath.Glob(filepath.Join(w.dir, "*"+TaskExt))
	if err != nil {
		return err
	}
	sort.Strings(existing)
	for _, path := range existing {
		w.process(ctx, path)
	}

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("inbox stopped", zap.String("dir", w.dir))
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			w.handleEvent(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			log.Warn("watcher error", zap.Error(err))

		case <-ticker.C:
			for _, path := range w.settled() {
				w.process(ctx, path)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, TaskExt) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.pending[event.Name] = time.Now()
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(w.pending, event.Name)
	}
}

// settled returns pending paths untouched for the debounce window.
func (w *Watcher) settled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	now := time.Now()
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(ready)
	return ready
}

func (w *Watcher) process(ctx context.Context, path string) {
	log := logging.Get(logging.CategoryInbox)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("failed to read task", zap.String("path", path), zap.Error(err))
		}
		return
	}

	base := strings.TrimSuffix(path, TaskExt)
	res, err := w.runner.Dispatch(ctx, strings.TrimSpace(string(data)))

	outPath, body := base+".status", ""
	if err != nil {
		outPath, body = base+".error", err.Error()
	} else if res != nil {
		body = res.Status
	}
	if werr := os.WriteFile(outPath, []byte(body+"\n"), 0644); werr != nil {
		log.Error("failed to write result", zap.String("path", outPath), zap.Error(werr))
		return
	}
	if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
		log.Warn("failed to remove task", zap.String("path", path), zap.Error(rerr))
	}

	w.mu.Lock()
	if err != nil {
		w.stats.Failed++
	} else {
		w.stats.Succeeded++
	}
	w.stats.LastTask = filepath.Base(path)
	w.stats.LastTime = time.Now()
	w.mu.Unlock()

	log.Info("task processed",
		zap.String("task", filepath.Base(path)),
		zap.Bool("success", err == nil))
}
