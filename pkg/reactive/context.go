// Package reactive provides dependency-tracked filesystem reads and
// versioned state.
//
// A computation runs with tracking attached to its context; every read
// primitive it calls records the touched path in the dependency set. The
// driver then watches those paths and re-runs the computation when any of
// them change. Outside a tracking context the primitives are plain reads
// with identical semantics, so the same functions are safe to call from
// non-reactive code.
//
// Example usage:
//
//	ctx, deps := reactive.WithTracking(context.Background())
//	data, ok := reactive.ReadFile(ctx, "/tmp/proj/openspec.yaml")
//	names := reactive.ReadDir(ctx, "/tmp/proj/specs", reactive.DirOptions{})
//	// deps.Paths() now holds both paths for the driver to watch.
package reactive

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
)

// DepSet accumulates the paths touched during one computation.
//
// It is append-only and deduplicated; the set is discarded once the
// computation completes and its paths are handed to the driver.
type DepSet struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// add records one path in its cleaned absolute form.
func (d *DepSet) add(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.paths[abs] = struct{}{}
}

// Paths returns a sorted snapshot of the collected dependencies.
func (d *DepSet) Paths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]string, 0, len(d.paths))
	for p := range d.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of distinct dependencies collected.
func (d *DepSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.paths)
}

// Has reports whether path (in cleaned absolute form) was collected.
func (d *DepSet) Has(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.paths[abs]
	return ok
}

type trackingKey struct{}

// WithTracking derives a context carrying a fresh dependency set.
//
// The set is valid across goroutines the computation may spawn, as long as
// they inherit the returned context.
func WithTracking(ctx context.Context) (context.Context, *DepSet) {
	deps := &DepSet{paths: make(map[string]struct{})}
	return context.WithValue(ctx, trackingKey{}, deps), deps
}

// Register records path as a dependency of the computation running under
// ctx. Without tracking it is a no-op, which is what makes the read
// primitives pure passthroughs outside a reactive computation.
//
// Custom read primitives can call this directly.
func Register(ctx context.Context, path string) {
	deps, ok := ctx.Value(trackingKey{}).(*DepSet)
	if !ok {
		return
	}
	deps.add(path)
}
