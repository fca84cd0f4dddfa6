// Package workspace manages the directory agents write their artifacts into
// and that the HTTP surface serves files from.
//
// Listings are cached while a watcher is running; any filesystem event in the
// root invalidates the cache. A cron-scheduled pruner can remove files older
// than a retention period.
//
//	ws, err := workspace.New("./workspace")
//	if err != nil {
//		return err
//	}
//	defer ws.Close()
//	_ = ws.Watch()
//	names, _ := ws.List()
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidName is returned for names that are empty, hidden or not a plain file name.
	ErrInvalidName = errors.New("invalid file name")
	// ErrNotFound is returned when no regular file exists under the name.
	ErrNotFound = errors.New("file not found")
)

// Workspace is a flat directory of session artifacts.
type Workspace struct {
	root string

	mu     sync.RWMutex
	cache  []string
	cached bool

	watcher   *fsnotify.Watcher
	done      chan struct{}
	scheduler *cron.Cron
	closed    bool
}

// New resolves root to an absolute path and creates it if needed.
func New(root string) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// List returns the sorted names of non-hidden regular files in the root.
func (w *Workspace) List() ([]string, error) {
	w.mu.RLock()
	if w.cached {
		names := append([]string(nil), w.cache...)
		w.mu.RUnlock()
		return names, nil
	}
	w.mu.RUnlock()

	names, err := w.scan()
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	if w.watcher != nil {
		w.cache = names
		w.cached = true
	}
	w.mu.Unlock()

	return append([]string(nil), names...), nil
}

func (w *Workspace) scan() ([]string, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if isHidden(e.Name()) || !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Path validates name and returns the absolute path of the file it names.
func (w *Workspace) Path(name string) (string, error) {
	if name == "" || isHidden(name) || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	full := filepath.Join(w.root, name)
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return full, nil
}

// Open opens a workspace file for reading.
func (w *Workspace) Open(name string) (*os.File, error) {
	full, err := w.Path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (w *Workspace) invalidate() {
	w.mu.Lock()
	w.cache = nil
	w.cached = false
	w.mu.Unlock()
}

// Close stops the watcher and the pruner.
func (w *Workspace) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	watcher, scheduler, done := w.watcher, w.scheduler, w.done
	w.watcher, w.scheduler = nil, nil
	w.cached = false
	w.mu.Unlock()

	var errs []error
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if watcher != nil {
		close(done)
		if err := watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close watcher: %w", err))
		}
	}
	return errors.Join(errs...)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
