// Package watch emits filesystem events for workspace packages onto
// the event bus, debounced so bursty editors and build tools produce
// one batch instead of hundreds of events.
package watch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/monorail-dev/monorail/internal/events"
	"github.com/monorail-dev/monorail/internal/workspace"
)

// DefaultDebounce is the quiet window used when none is configured.
const DefaultDebounce = 250 * time.Millisecond

// skipDirs are directory names never watched.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	".turbo":       true,
}

// Watcher watches the workspace tree and emits filesystem events.
type Watcher struct {
	graph    *workspace.Graph
	bus      *events.Bus
	debounce time.Duration

	fsw     *fsnotify.Watcher
	pending *batch
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a watcher over the graph's workspace, publishing to bus.
// A non-positive debounce falls back to DefaultDebounce.
func New(graph *workspace.Graph, bus *events.Bus, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		graph:    graph,
		bus:      bus,
		debounce: debounce,
		pending:  newBatch(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start registers the workspace directories and begins watching.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.addTree(w.graph.Root); err != nil {
		fsw.Close()
		return err
	}

	go w.loop()
	return nil
}

// Stop flushes pending events and shuts the watcher down. Safe to call
// once after a successful Start.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.fsw.Close()
}

// addTree watches dir and every subdirectory below it, skipping the
// usual generated and vendored trees.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			log.Printf("watch: cannot watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			w.flush()
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				w.flush()
				return
			}
			if !w.record(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.flush()
				return
			}
			log.Printf("watch: %v", err)

		case <-timerC:
			w.flush()
			timer = nil
			timerC = nil
		}
	}
}

// record classifies one raw notification into the pending batch.
// Returns false for noise that should not arm the debounce timer.
func (w *Watcher) record(ev fsnotify.Event) bool {
	op := classify(ev.Op)
	if op == "" {
		return false
	}

	// New directories join the watch set so nested creates are seen.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !skipDirs[filepath.Base(ev.Name)] {
				if err := w.addTree(ev.Name); err != nil {
					log.Printf("watch: cannot watch %s: %v", ev.Name, err)
				}
			}
			return false
		}
	}

	w.pending.record(ev.Name, op)
	return true
}

// flush emits one event per pending path, in path order.
func (w *Watcher) flush() {
	for _, c := range w.pending.drain() {
		rel, err := filepath.Rel(w.graph.Root, c.path)
		if err != nil {
			rel = c.path
		}
		data := events.FileSystemData{
			Path:      filepath.ToSlash(rel),
			Operation: c.op,
		}
		if owner := workspace.FindOwner(w.graph, rel); owner != nil {
			data.Package = owner.Name()
		}
		e, err := events.New(events.VariantFileSystem, "watch", events.PriorityNormal).WithData(data)
		if err != nil {
			log.Printf("watch: %v", err)
			continue
		}
		w.bus.Emit(e)
	}
}

// classify maps fsnotify ops onto the event vocabulary. Chmod-only
// notifications are dropped.
func classify(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "created"
	case op.Has(fsnotify.Remove):
		return "deleted"
	case op.Has(fsnotify.Rename):
		return "renamed"
	case op.Has(fsnotify.Write):
		return "modified"
	}
	return ""
}

// batch accumulates one operation per path between flushes. A later
// operation on the same path replaces the earlier one, except that a
// create followed by writes stays a create.
type batch struct {
	ops   map[string]string
	order []string
}

func newBatch() *batch {
	return &batch{ops: make(map[string]string)}
}

func (b *batch) record(path, op string) {
	prev, seen := b.ops[path]
	if !seen {
		b.order = append(b.order, path)
	}
	if seen && prev == "created" && op == "modified" {
		return
	}
	b.ops[path] = op
}

type change struct {
	path string
	op   string
}

func (b *batch) drain() []change {
	if len(b.order) == 0 {
		return nil
	}
	paths := b.order
	sort.Strings(paths)
	changes := make([]change, 0, len(paths))
	for _, p := range paths {
		changes = append(changes, change{path: p, op: b.ops[p]})
	}
	b.ops = make(map[string]string)
	b.order = nil
	return changes
}
