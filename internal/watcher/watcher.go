// Package watcher watches per-case inbox directories with fsnotify and hands
// each new or changed file to an ingest callback after a debounce.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/bicesterbug/bbug-planning-reporter/internal/extract"
)

const defaultDebounce = 400 * time.Millisecond

// Inbox is a directory whose files belong to one planning case. DocumentType
// is optional; empty means classify each file.
type Inbox struct {
	Path          string `json:"path" yaml:"path"`
	CaseReference string `json:"case_reference" yaml:"case_reference"`
	DocumentType  string `json:"document_type,omitempty" yaml:"document_type,omitempty"`
}

// IngestFunc is called once per settled file.
type IngestFunc func(path string, inbox Inbox)

// Watcher watches inboxes and invokes the callback on file changes.
type Watcher struct {
	inboxes     []Inbox
	recursive   bool
	onFile      IngestFunc
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	rootPaths   map[string][]string // inbox path -> watched dirs under it
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a file must be quiet before it is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for inboxes. Only files with an extractable
// extension reach onFile.
func NewWatcher(inboxes []Inbox, recursive bool, onFile IngestFunc, opts ...Option) *Watcher {
	w := &Watcher{
		recursive:   recursive,
		onFile:      onFile,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		rootPaths:   make(map[string][]string),
		done:        make(chan struct{}),
		logger:      zap.NewNop(),
	}
	for _, in := range inboxes {
		in.Path = filepath.Clean(in.Path)
		w.inboxes = append(w.inboxes, in)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
// Missing inbox directories are created.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fw
	w.started = true
	w.logger.Debug("watcher starting", zap.Int("inboxes", len(w.inboxes)), zap.Bool("recursive", w.recursive))
	for _, in := range w.inboxes {
		if err := w.addRootLocked(in.Path); err != nil {
			_ = fw.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return fmt.Errorf("watch inbox %s: %w", in.Path, err)
		}
	}
	w.mu.Unlock()
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	inbox, ok := w.inboxFor(path)
	if !ok {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(path, inbox)
			return
		}
		if extract.IsSupported(path) {
			w.debounceIngest(path, inbox)
		}
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		// Stored documents are keyed by content, so a removed file only cancels
		// a pending ingest.
		w.cancelDebounce(path)
	}
}

// handleNewDirectory watches a directory moved or created inside an inbox and
// ingests the files already in it.
func (w *Watcher) handleNewDirectory(dirPath string, inbox Inbox) {
	w.mu.Lock()
	recursive := w.recursive
	fw := w.watcher
	w.mu.Unlock()
	if fw == nil || !recursive {
		return
	}
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			} else {
				w.mu.Lock()
				w.rootPaths[inbox.Path] = append(w.rootPaths[inbox.Path], path)
				w.mu.Unlock()
			}
		}
		return nil
	})
	w.syncInbox(dirPath, inbox)
}

// inboxFor returns the innermost inbox containing path.
func (w *Watcher) inboxFor(path string) (Inbox, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	clean := filepath.Clean(path)
	var best Inbox
	found := false
	for _, in := range w.inboxes {
		if in.Path == clean || inDir(in.Path, clean) {
			if !found || len(in.Path) > len(best.Path) {
				best, found = in, true
			}
		}
	}
	return best, found
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) debounceIngest(path string, inbox Inbox) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	t := time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.logger.Debug("watcher ingesting file (debounced)", zap.String("path", path), zap.String("case", inbox.CaseReference))
		if w.onFile != nil {
			w.onFile(path, inbox)
		}
	})
	w.debounceMap[path] = t
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

// AddInbox starts watching an inbox and optionally ingests the files already
// in it. Adding a path that is already watched is a no-op.
func (w *Watcher) AddInbox(inbox Inbox, syncExisting bool) error {
	if strings.TrimSpace(inbox.CaseReference) == "" {
		return fmt.Errorf("inbox %s: case_reference is required", inbox.Path)
	}
	abs, err := filepath.Abs(inbox.Path)
	if err != nil {
		return err
	}
	inbox.Path = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, in := range w.inboxes {
		if in.Path == inbox.Path {
			return nil
		}
	}
	if w.watcher != nil {
		if err := w.addRootLocked(inbox.Path); err != nil {
			return err
		}
	}
	w.inboxes = append(w.inboxes, inbox)
	w.logger.Debug("watcher inbox added", zap.String("path", inbox.Path), zap.String("case", inbox.CaseReference))
	if syncExisting && w.onFile != nil {
		go w.syncInbox(inbox.Path, inbox)
	}
	return nil
}

func (w *Watcher) addRootLocked(root string) error {
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return err
		}
	}
	var paths []string
	if w.recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if err := w.watcher.Add(path); err != nil {
				return err
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := w.watcher.Add(root); err != nil {
			return err
		}
		paths = append(paths, root)
	}
	w.rootPaths[root] = paths
	return nil
}

func (w *Watcher) syncInbox(dir string, inbox Inbox) {
	w.mu.Lock()
	onFile := w.onFile
	recursive := w.recursive
	w.mu.Unlock()
	w.logger.Debug("watcher syncing directory", zap.String("dir", dir))
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if extract.IsSupported(path) && onFile != nil {
			onFile(path, inbox)
		}
		return nil
	})
}

// RemoveInbox stops watching an inbox. Ingested documents are kept.
func (w *Watcher) RemoveInbox(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := -1
	for i, in := range w.inboxes {
		if in.Path == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	if w.watcher != nil {
		for _, p := range w.rootPaths[abs] {
			_ = w.watcher.Remove(p)
		}
	}
	delete(w.rootPaths, abs)
	w.inboxes = append(w.inboxes[:idx], w.inboxes[idx+1:]...)
	w.logger.Debug("watcher inbox removed", zap.String("path", abs))
	return nil
}

// Inboxes returns a copy of the watched inboxes.
func (w *Watcher) Inboxes() []Inbox {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Inbox(nil), w.inboxes...)
}

// SyncExistingFiles hands every supported file already in each inbox to the
// callback. Call it after Start to pick up files that arrived while stopped.
func (w *Watcher) SyncExistingFiles() {
	for _, in := range w.Inboxes() {
		w.syncInbox(in.Path, in)
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
