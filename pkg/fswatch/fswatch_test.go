package fswatch

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 5 * time.Second
	tick    = 20 * time.Millisecond
)

type event struct {
	kind string
	path string
}

type recorder struct {
	mu     sync.Mutex
	events []event
	fail   error
}

func (r *recorder) record(kind, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind, path})
	if r.fail != nil {
		return r.fail
	}
	return nil
}

func (r *recorder) OnAdd(path string) error       { return r.record("add", path) }
func (r *recorder) OnChange(path string) error    { return r.record("change", path) }
func (r *recorder) OnUnlink(path string) error    { return r.record("unlink", path) }
func (r *recorder) OnAddDir(path string) error    { return r.record("addDir", path) }
func (r *recorder) OnUnlinkDir(path string) error { return r.record("unlinkDir", path) }

func (r *recorder) has(kind, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.kind == kind && e.path == path {
			return true
		}
	}
	return false
}

func (r *recorder) touching(fragment string) []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event
	for _, e := range r.events {
		if strings.Contains(e.path, fragment) {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func startWatcher(t *testing.T, root string, opts Options) (*Watcher, *recorder) {
	t.Helper()
	rec := &recorder{}
	w := New(root, opts)
	require.NoError(t, w.Start(context.Background(), rec))
	t.Cleanup(func() { _ = w.Close() })

	select {
	case <-w.Ready():
	default:
		t.Fatal("watcher not ready after Start returned")
	}
	return w, rec
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestExistingTreeProducesNoEvents(t *testing.T) {
	root := filepath.Join(t.TempDir(), "lib")
	mustWrite(t, filepath.Join(root, "a.txt"), "a")
	mustWrite(t, filepath.Join(root, "deep", "b.txt"), "b")

	w, rec := startWatcher(t, root, Options{Recursive: true})

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
	assert.ElementsMatch(t, []string{root, filepath.Join(root, "deep")}, w.knownDirs())
	assert.Equal(t, root, w.Root())
}

func TestFileLifecycle(t *testing.T) {
	root := filepath.Join(t.TempDir(), "lib")
	require.NoError(t, os.MkdirAll(root, 0755))
	_, rec := startWatcher(t, root, Options{Recursive: true})

	file := filepath.Join(root, "new.txt")
	mustWrite(t, file, "one")
	require.Eventually(t, func() bool { return rec.has("add", file) }, waitFor, tick)

	f, err := os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("two")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Eventually(t, func() bool { return rec.has("change", file) }, waitFor, tick)

	require.NoError(t, os.Remove(file))
	require.Eventually(t, func() bool { return rec.has("unlink", file) }, waitFor, tick)
}

func TestNestedDirectoryCreation(t *testing.T) {
	root := filepath.Join(t.TempDir(), "lib")
	require.NoError(t, os.MkdirAll(root, 0755))
	w, rec := startWatcher(t, root, Options{Recursive: true})

	deep := filepath.Join(root, "a", "b")
	file := filepath.Join(deep, "c.txt")
	mustWrite(t, file, "c")

	require.Eventually(t, func() bool {
		return rec.has("addDir", filepath.Join(root, "a")) &&
			rec.has("addDir", deep) &&
			rec.has("add", file)
	}, waitFor, tick)
	assert.Contains(t, w.knownDirs(), deep)

	// Content written after discovery is reported through the new watch
	later := filepath.Join(deep, "later.txt")
	mustWrite(t, later, "later")
	require.Eventually(t, func() bool { return rec.has("add", later) }, waitFor, tick)
}

func TestDirectoryRemoval(t *testing.T) {
	root := filepath.Join(t.TempDir(), "lib")
	sub := filepath.Join(root, "sub")
	mustWrite(t, filepath.Join(sub, "x.txt"), "x")
	w, rec := startWatcher(t, root, Options{Recursive: true})

	require.NoError(t, os.RemoveAll(sub))
	require.Eventually(t, func() bool { return rec.has("unlinkDir", sub) }, waitFor, tick)

	time.Sleep(100 * time.Millisecond)
	assert.False(t, rec.has("unlink", sub), "a removed directory is not reported as a file")
	assert.NotContains(t, w.knownDirs(), sub)
}

func TestRootRemovedAndRecreated(t *testing.T) {
	root := filepath.Join(t.TempDir(), "lib")
	mustWrite(t, filepath.Join(root, "a.txt"), "a")
	_, rec := startWatcher(t, root, Options{Recursive: true})

	require.NoError(t, os.RemoveAll(root))
	require.Eventually(t, func() bool { return rec.has("unlinkDir", root) }, waitFor, tick)

	require.NoError(t, os.Mkdir(root, 0755))
	require.Eventually(t, func() bool { return rec.has("addDir", root) }, waitFor, tick)

	file := filepath.Join(root, "b.txt")
	mustWrite(t, file, "b")
	require.Eventually(t, func() bool { return rec.has("add", file) }, waitFor, tick)
}

func TestIgnoredPaths(t *testing.T) {
	root := filepath.Join(t.TempDir(), "lib")
	require.NoError(t, os.MkdirAll(root, 0755))
	_, rec := startWatcher(t, root, Options{
		Recursive: true,
		Ignored: func(path string, isDir bool) bool {
			return strings.HasPrefix(filepath.Base(path), ".")
		},
	})

	mustWrite(t, filepath.Join(root, ".cache", "x"), "x")
	mustWrite(t, filepath.Join(root, ".swp"), "x")
	visible := filepath.Join(root, "visible.txt")
	mustWrite(t, visible, "v")

	require.Eventually(t, func() bool { return rec.has("add", visible) }, waitFor, tick)
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.touching("/."))
}

func TestNonRecursiveReportsDirectChildrenOnly(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))
	_, rec := startWatcher(t, root, Options{Recursive: false})

	mustWrite(t, filepath.Join(sub, "inner.txt"), "inner")
	top := filepath.Join(root, "top.txt")
	mustWrite(t, top, "top")
	newDir := filepath.Join(root, "newdir")
	require.NoError(t, os.Mkdir(newDir, 0755))

	require.Eventually(t, func() bool {
		return rec.has("add", top) && rec.has("addDir", newDir)
	}, waitFor, tick)

	mustWrite(t, filepath.Join(newDir, "nested.txt"), "nested")
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, rec.touching("inner.txt"))
	assert.Empty(t, rec.touching("nested.txt"))

	require.NoError(t, os.Remove(filepath.Join(newDir, "nested.txt")))
	require.NoError(t, os.Remove(newDir))
	require.Eventually(t, func() bool { return rec.has("unlinkDir", newDir) }, waitFor, tick)
}

func TestFileRoot(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "index.js")
	mustWrite(t, root, "v1")
	_, rec := startWatcher(t, root, Options{Recursive: true})

	mustWrite(t, filepath.Join(dir, "other.js"), "other")
	mustWrite(t, root, "v2")
	require.Eventually(t, func() bool { return rec.has("change", root) }, waitFor, tick)

	require.NoError(t, os.Remove(root))
	require.Eventually(t, func() bool { return rec.has("unlink", root) }, waitFor, tick)

	mustWrite(t, root, "v3")
	require.Eventually(t, func() bool { return rec.has("add", root) }, waitFor, tick)
	assert.Empty(t, rec.touching("other.js"))
}

func TestSyncOnStartReportsExistingTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "lib")
	file := filepath.Join(root, "deep", "b.txt")
	mustWrite(t, file, "b")

	_, rec := startWatcher(t, root, Options{Recursive: true, SyncOnStart: true})
	require.Eventually(t, func() bool {
		return rec.has("addDir", root) &&
			rec.has("addDir", filepath.Join(root, "deep")) &&
			rec.has("add", file)
	}, waitFor, tick)

	fileRoot := filepath.Join(t.TempDir(), "index.js")
	mustWrite(t, fileRoot, "x")
	_, rec = startWatcher(t, fileRoot, Options{SyncOnStart: true})
	require.Eventually(t, func() bool { return rec.has("add", fileRoot) }, waitFor, tick)
}

func TestHandlerErrorStopsWatcher(t *testing.T) {
	root := filepath.Join(t.TempDir(), "lib")
	require.NoError(t, os.MkdirAll(root, 0755))

	boom := stderrors.New("disk full")
	var (
		mu       sync.Mutex
		reported []error
	)
	rec := &recorder{fail: boom}
	w := New(root, Options{
		Recursive: true,
		OnError: func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		},
	})
	require.NoError(t, w.Start(context.Background(), rec))
	defer func() { _ = w.Close() }()

	mustWrite(t, filepath.Join(root, "a.txt"), "a")

	select {
	case <-w.Done():
	case <-time.After(waitFor):
		t.Fatal("watcher did not stop after handler error")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], boom)
}

func TestContextCancelStopsWatcher(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	w := New(root, Options{Recursive: true})
	require.NoError(t, w.Start(ctx, &recorder{}))

	cancel()
	select {
	case <-w.Done():
	case <-time.After(waitFor):
		t.Fatal("watcher did not stop after cancel")
	}
	assert.NoError(t, w.Close())
}

func TestStartErrors(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		w := New(filepath.Join(t.TempDir(), "nope"), Options{})
		assert.Error(t, w.Start(context.Background(), &recorder{}))
		<-w.Done()
	})

	t.Run("started twice", func(t *testing.T) {
		w := New(t.TempDir(), Options{})
		require.NoError(t, w.Start(context.Background(), &recorder{}))
		defer func() { _ = w.Close() }()
		assert.Error(t, w.Start(context.Background(), &recorder{}))
	})

	t.Run("closed before start", func(t *testing.T) {
		w := New(t.TempDir(), Options{})
		require.NoError(t, w.Close())
		assert.Error(t, w.Start(context.Background(), &recorder{}))
		assert.NoError(t, w.Close())
	})
}
