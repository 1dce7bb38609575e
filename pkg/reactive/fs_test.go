package reactive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFileTracksDependency(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("# doc"), 0o600))

	ctx, deps := WithTracking(context.Background())

	data, ok := ReadFile(ctx, path)
	require.True(t, ok)
	assert.Equal(t, "# doc", string(data))
	assert.True(t, deps.Has(path))
	assert.Equal(t, 1, deps.Len())
}

func TestReadFileAbsentStillTracked(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.md")

	ctx, deps := WithTracking(context.Background())

	data, ok := ReadFile(ctx, missing)
	assert.False(t, ok)
	assert.Nil(t, data)

	// A computation that saw the file absent depends on it appearing.
	assert.True(t, deps.Has(missing))
}

func TestReadFileWithoutTrackingIsPassthrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	data, ok := ReadFile(context.Background(), path)
	require.True(t, ok)
	assert.Equal(t, "x", string(data))
}

func TestReadDirFiltering(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "specs"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o600))

	ctx, deps := WithTracking(context.Background())

	names := ReadDir(ctx, dir, DirOptions{})
	assert.Equal(t, []string{"README.md", "archive", "specs"}, names)

	// The directory itself is the dependency, not each child.
	assert.Equal(t, 1, deps.Len())
	assert.True(t, deps.Has(dir))

	dirsOnly := ReadDir(ctx, dir, DirOptions{DirectoriesOnly: true})
	assert.Equal(t, []string{"archive", "specs"}, dirsOnly)

	withHidden := ReadDir(ctx, dir, DirOptions{IncludeHidden: true})
	assert.Contains(t, withHidden, ".hidden")
	assert.Contains(t, withHidden, ".git")

	excluded := ReadDir(ctx, dir, DirOptions{DirectoriesOnly: true, Exclude: []string{"archive"}})
	assert.Equal(t, []string{"specs"}, excluded)
}

func TestReadDirAbsent(t *testing.T) {
	ctx, deps := WithTracking(context.Background())

	names := ReadDir(ctx, filepath.Join(t.TempDir(), "nope"), DirOptions{})
	assert.Nil(t, names)
	assert.Equal(t, 1, deps.Len())
}

func TestStat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	ctx, deps := WithTracking(context.Background())

	info, ok := Stat(ctx, path)
	require.True(t, ok)
	assert.False(t, info.IsDirectory)
	assert.WithinDuration(t, time.Now(), info.ModTime, time.Minute)
	assert.False(t, info.BirthTime.IsZero())

	dirInfo, ok := Stat(ctx, dir)
	require.True(t, ok)
	assert.True(t, dirInfo.IsDirectory)

	_, ok = Stat(ctx, filepath.Join(dir, "missing"))
	assert.False(t, ok)

	assert.Equal(t, 3, deps.Len())
}

func TestRegisterDeduplicates(t *testing.T) {
	ctx, deps := WithTracking(context.Background())

	Register(ctx, "/a/b")
	Register(ctx, "/a/b")
	Register(ctx, "/a/b/../b")

	assert.Equal(t, 1, deps.Len())
	assert.Equal(t, []string{"/a/b"}, deps.Paths())
}

func TestRegisterWithoutTrackingIsNoop(t *testing.T) {
	// Must not panic or record anywhere.
	Register(context.Background(), "/a/b")
}

func TestPathsSorted(t *testing.T) {
	ctx, deps := WithTracking(context.Background())

	Register(ctx, "/z")
	Register(ctx, "/a")
	Register(ctx, "/m")

	assert.Equal(t, []string{"/a", "/m", "/z"}, deps.Paths())
}
