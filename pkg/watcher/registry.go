package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/specview/reactivefs/pkg/fsevents"
	"github.com/specview/reactivefs/pkg/logger"
)

// CanonicalPath returns the absolute, symlink-resolved form of path, the
// stable key for watcher identity.
//
// Paths that do not exist yet cannot be resolved; they fall back to the
// cleaned absolute form so identity stays stable until they appear.
// Symlinks are resolved only here, at the root level; event paths inside a
// symlinked subtree are reported as the backend sees them.
func CanonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to absolutize path: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return filepath.Clean(abs), nil
	}
	return resolved, nil
}

// Registry caches one ProjectWatcher per canonical root.
//
// It is an explicit service object with a defined shutdown rather than a
// package-level cache; whoever owns the application lifetime owns the
// Registry.
type Registry struct {
	backend fsevents.Backend
	cfg     Config
	logger  logger.Logger
	opts    []Option

	mu       sync.Mutex
	watchers map[string]*ProjectWatcher
	closed   bool
}

// NewRegistry creates a registry over the given backend.
//
// Options (e.g. WithJournal) are applied to every watcher the registry
// creates.
func NewRegistry(backend fsevents.Backend, cfg Config, log logger.Logger, opts ...Option) *Registry {
	return &Registry{
		backend:  backend,
		cfg:      cfg.withDefaults(),
		logger:   log,
		opts:     opts,
		watchers: make(map[string]*ProjectWatcher),
	}
}

// Watcher returns the watcher for the canonical form of root, creating it
// lazily. Two paths resolving to the same canonical root share one
// instance, and therefore one backend subscription.
func (r *Registry) Watcher(root string) (*ProjectWatcher, error) {
	canonical, err := CanonicalPath(root)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	if w, ok := r.watchers[canonical]; ok {
		return w, nil
	}

	w := NewProjectWatcher(canonical, r.backend, r.cfg, r.logger, r.opts...)
	r.watchers[canonical] = w

	r.logger.Debug("project watcher created", "root", canonical)
	return w, nil
}

// WatcherFor returns the watcher owning path along with path's canonical
// form. If an existing watcher's root contains the path it is reused;
// otherwise a new watcher is rooted at the path itself (or at its parent
// directory when the path is a file or absent).
func (r *Registry) WatcherFor(path string) (*ProjectWatcher, string, error) {
	canonical, err := CanonicalPath(path)
	if err != nil {
		return nil, "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, "", ErrRegistryClosed
	}

	for root, w := range r.watchers {
		if canonical == root || strings.HasPrefix(canonical, root+string(filepath.Separator)) {
			return w, canonical, nil
		}
	}

	root := canonical
	if info, statErr := os.Stat(canonical); statErr != nil || !info.IsDir() {
		root = filepath.Dir(canonical)
	}

	if w, ok := r.watchers[root]; ok {
		return w, canonical, nil
	}

	w := NewProjectWatcher(root, r.backend, r.cfg, r.logger, r.opts...)
	r.watchers[root] = w

	r.logger.Debug("project watcher created", "root", root, "for", canonical)
	return w, canonical, nil
}

// Size returns the number of live watcher instances.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers)
}

// CloseAll closes every watcher and marks the registry closed.
//
// Returns the first close error encountered, if any.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	watchers := r.watchers
	r.watchers = make(map[string]*ProjectWatcher)
	r.mu.Unlock()

	var firstErr error
	for _, w := range watchers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
