package reactive

import (
	"context"
	"os"
	"strings"
	"time"
)

// DirOptions controls ReadDir filtering.
type DirOptions struct {
	// DirectoriesOnly keeps only subdirectories.
	DirectoriesOnly bool

	// IncludeHidden keeps entries whose name starts with a dot.
	IncludeHidden bool

	// Exclude drops entries with these exact names.
	Exclude []string
}

// Info is the reactive stat result.
type Info struct {
	// IsDirectory reports whether the path is a directory.
	IsDirectory bool

	// BirthTime is the creation time, best effort: not every platform
	// records one, in which case it falls back to the modification time.
	BirthTime time.Time

	// ModTime is the last modification time.
	ModTime time.Time
}

// ReadFile reads a file and registers it as a dependency.
//
// Files routinely appear and disappear mid-edit, so absence is not an
// error: a missing or unreadable file yields (nil, false). The path is
// registered either way — a computation that saw the file absent depends
// on it appearing.
func ReadFile(ctx context.Context, path string) ([]byte, bool) {
	Register(ctx, path)

	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		return nil, false
	}
	return data, true
}

// ReadDir lists a directory's entry names, sorted, and registers the
// directory itself as the dependency — a listing changes when any child is
// added or removed, so the directory is the thing to watch, not each child.
//
// Hidden entries are dropped unless opts.IncludeHidden is set. A missing
// directory yields nil.
func ReadDir(ctx context.Context, path string, opts DirOptions) []string {
	Register(ctx, path)

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil
	}

	excluded := make(map[string]struct{}, len(opts.Exclude))
	for _, name := range opts.Exclude {
		excluded[name] = struct{}{}
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
			continue
		}
		if _, skip := excluded[name]; skip {
			continue
		}
		if opts.DirectoriesOnly && !entry.IsDir() {
			continue
		}
		names = append(names, name)
	}

	return names
}

// Stat returns presence and times for a path and registers it as a
// dependency. A missing path yields (Info{}, false).
func Stat(ctx context.Context, path string) (Info, bool) {
	Register(ctx, path)

	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, false
	}

	return Info{
		IsDirectory: fi.IsDir(),
		BirthTime:   birthTime(fi),
		ModTime:     fi.ModTime(),
	}, true
}
