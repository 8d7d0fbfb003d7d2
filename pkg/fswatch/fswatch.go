package fswatch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/arthur-debert/pkgsync/pkg/errors"
	"github.com/arthur-debert/pkgsync/pkg/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Handler receives the events of a watcher
type Handler interface {
	OnAdd(path string) error
	OnChange(path string) error
	OnUnlink(path string) error
	OnAddDir(path string) error
	OnUnlinkDir(path string) error
}

// Options configures a Watcher
type Options struct {
	// Ignored filters out paths. It is never consulted for the root itself.
	Ignored func(path string, isDir bool) bool

	// Recursive watches the whole tree under the root. A non-recursive
	// watcher only reports the root's direct children.
	Recursive bool

	// SyncOnStart reports the root and everything below it once, from the
	// event loop and before any live event. Changes made while the watcher
	// was being attached are then not lost.
	SyncOnStart bool

	// OnError is called once when the watcher stops because of an error
	OnError func(err error)
}

// Watcher watches one root path
type Watcher struct {
	root   string
	opts   Options
	logger zerolog.Logger

	fsw     *fsnotify.Watcher
	ready   chan struct{}
	done    chan struct{}
	closing chan struct{}

	mu          sync.Mutex
	started     bool
	closed      bool
	dirs        map[string]bool
	gone        map[string]bool
	rootPresent bool
}

// New creates a watcher for root. Nothing is watched until Start is called.
func New(root string, opts Options) *Watcher {
	root = filepath.Clean(root)
	return &Watcher{
		root:    root,
		opts:    opts,
		logger:  logging.GetLogger("fswatch").With().Str("root", root).Logger(),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
		dirs:    make(map[string]bool),
		gone:    make(map[string]bool),
	}
}

// Root returns the watched path
func (w *Watcher) Root() string { return w.root }

// Ready is closed once the existing tree has been enumerated
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Done is closed when the watcher has stopped
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Start attaches the OS watches and begins delivering events to h. It returns
// once the existing tree is enumerated. The watcher stops when ctx ends,
// when Close is called or on the first error.
func (w *Watcher) Start(ctx context.Context, h Handler) error {
	w.mu.Lock()
	if w.started || w.closed {
		w.mu.Unlock()
		return errors.Newf(errors.ErrWatch, "watcher for %s already started", w.root)
	}
	w.started = true
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		close(w.done)
		return errors.Wrap(err, errors.ErrWatch, "creating fsnotify watcher")
	}
	w.fsw = fsw

	if err := w.attach(); err != nil {
		_ = fsw.Close()
		close(w.done)
		return err
	}
	close(w.ready)

	w.logger.Debug().
		Bool("recursive", w.opts.Recursive).
		Int("dirs", w.knownDirCount()).
		Msg("Watcher ready")

	go w.run(ctx, h)
	return nil
}

// Close stops the watcher and waits for its event loop to exit. It must not
// be called from the watcher's own Handler.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	close(w.closing)
	if !started {
		close(w.done)
		return nil
	}
	<-w.done
	return nil
}

// attach watches the root's parent and, for a directory root, the tree below
// it. Symlinks are not followed.
func (w *Watcher) attach() error {
	info, err := os.Lstat(w.root)
	if err != nil {
		return errors.Wrapf(err, errors.ErrWatch, "cannot watch %s", w.root)
	}
	w.rootPresent = true

	parent := filepath.Dir(w.root)
	if parent != w.root {
		if err := w.fsw.Add(parent); err != nil {
			return errors.Wrapf(err, errors.ErrWatch, "cannot watch parent of %s", w.root)
		}
	}

	if !info.IsDir() {
		return nil
	}
	if err := w.addDir(w.root); err != nil {
		return err
	}
	if !w.opts.Recursive {
		entries, err := os.ReadDir(w.root)
		if err != nil {
			return errors.Wrapf(err, errors.ErrWatch, "reading %s", w.root)
		}
		for _, entry := range entries {
			path := filepath.Join(w.root, entry.Name())
			if entry.IsDir() && !w.ignored(path, true) {
				w.setKnownDir(path)
			}
		}
		return nil
	}

	return w.walk(w.root, nil)
}

// walk adds every directory below dir. When h is set, it also reports every
// entry found, which catches content created before the watch was attached.
func (w *Watcher) walk(dir string, h Handler) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return errors.Wrapf(err, errors.ErrWatch, "walking %s", path)
		}
		if path == dir {
			return nil
		}
		isDir := d.IsDir()
		if d.Type()&fs.ModeSymlink != 0 {
			var skip bool
			isDir, skip = symlinkTarget(path)
			if skip {
				return nil
			}
		}
		if w.ignored(path, isDir) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !isDir {
			if h != nil {
				return h.OnAdd(path)
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if err := w.addDir(path); err != nil {
			return err
		}
		if h != nil {
			return h.OnAddDir(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context, h Handler) {
	defer close(w.done)
	defer func() { _ = w.fsw.Close() }()

	if w.opts.SyncOnStart {
		if err := w.sync(h); err != nil {
			w.fail(err)
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug().Msg("Watcher stopped by context")
			return
		case <-w.closing:
			w.logger.Debug().Msg("Watcher closed")
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if err := w.dispatch(ev, h); err != nil {
				w.fail(err)
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.fail(errors.Wrapf(err, errors.ErrWatch, "watcher for %s failed", w.root))
			return
		}
	}
}

// sync reports the current tree as if it had just been created
func (w *Watcher) sync(h Handler) error {
	info, err := os.Stat(w.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, errors.ErrWatch, "inspecting %s", w.root)
	}
	if !info.IsDir() {
		return h.OnAdd(w.root)
	}
	if err := h.OnAddDir(w.root); err != nil {
		return err
	}
	if !w.opts.Recursive {
		return nil
	}
	return w.walk(w.root, h)
}

func (w *Watcher) fail(err error) {
	w.logger.Error().Err(err).Msg("Watcher stopped on error")
	if w.opts.OnError != nil {
		w.opts.OnError(err)
	}
}

func (w *Watcher) dispatch(ev fsnotify.Event, h Handler) error {
	path := filepath.Clean(ev.Name)
	if !w.inScope(path) {
		return nil
	}
	w.logger.Trace().Str("path", path).Str("op", ev.Op.String()).Msg("fsnotify event")

	switch {
	case ev.Has(fsnotify.Create):
		return w.handleCreate(path, h)
	case ev.Has(fsnotify.Write):
		if w.isKnownDir(path) || w.ignoredUnlessRoot(path, false) {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			// Gone already; its removal event follows
			return nil
		}
		return h.OnChange(path)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return w.handleRemove(path, h)
	}
	return nil
}

func (w *Watcher) handleCreate(path string, h Handler) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, errors.ErrWatch, "inspecting %s", path)
	}

	w.mu.Lock()
	delete(w.gone, path)
	if path == w.root {
		if w.rootPresent {
			w.mu.Unlock()
			return nil
		}
		w.rootPresent = true
	}
	w.mu.Unlock()

	isDir := info.IsDir()
	if info.Mode()&os.ModeSymlink != 0 {
		var skip bool
		isDir, skip = symlinkTarget(path)
		if skip || isDir {
			w.logger.Debug().Str("path", path).Msg("Skipping symlink")
			return nil
		}
	}
	if w.ignoredUnlessRoot(path, isDir) {
		return nil
	}
	if !isDir {
		return h.OnAdd(path)
	}
	if w.isKnownDir(path) {
		return nil
	}

	if path != w.root && !w.opts.Recursive {
		w.setKnownDir(path)
		return h.OnAddDir(path)
	}
	if err := w.addDir(path); err != nil {
		return err
	}
	if err := h.OnAddDir(path); err != nil {
		return err
	}
	return w.walk(path, h)
}

func (w *Watcher) handleRemove(path string, h Handler) error {
	w.mu.Lock()
	if path == w.root {
		if !w.rootPresent {
			w.mu.Unlock()
			return nil
		}
		w.rootPresent = false
	}
	if w.dirs[path] {
		w.forgetLocked(path)
		w.gone[path] = true
		w.mu.Unlock()
		return h.OnUnlinkDir(path)
	}
	if w.gone[path] {
		delete(w.gone, path)
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if w.ignoredUnlessRoot(path, false) {
		return nil
	}
	return h.OnUnlink(path)
}

// inScope reports whether path is the root or below it. Events for the
// root's siblings arrive through the parent watch and are dropped.
func (w *Watcher) inScope(path string) bool {
	if path == w.root {
		return true
	}
	return strings.HasPrefix(path, w.root+string(filepath.Separator))
}

func (w *Watcher) ignored(path string, isDir bool) bool {
	return w.opts.Ignored != nil && w.opts.Ignored(path, isDir)
}

func (w *Watcher) ignoredUnlessRoot(path string, isDir bool) bool {
	return path != w.root && w.ignored(path, isDir)
}

func (w *Watcher) addDir(path string) error {
	if err := w.fsw.Add(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, errors.ErrWatch, "cannot watch %s", path)
	}
	w.setKnownDir(path)
	return nil
}

func (w *Watcher) setKnownDir(path string) {
	w.mu.Lock()
	w.dirs[path] = true
	w.mu.Unlock()
}

func (w *Watcher) isKnownDir(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirs[path]
}

func (w *Watcher) knownDirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	dirs := make([]string, 0, len(w.dirs))
	for dir := range w.dirs {
		dirs = append(dirs, dir)
	}
	return dirs
}

func (w *Watcher) knownDirCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dirs)
}

// forgetLocked drops path and every known directory below it
func (w *Watcher) forgetLocked(path string) {
	prefix := path + string(filepath.Separator)
	for dir := range w.dirs {
		if dir == path || strings.HasPrefix(dir, prefix) {
			delete(w.dirs, dir)
			// The kernel drops watches on deleted directories
			_ = w.fsw.Remove(dir)
		}
	}
}

// symlinkTarget reports whether the link at path points to a directory, and
// whether it should be skipped because its target cannot be resolved.
func symlinkTarget(path string) (isDir bool, skip bool) {
	info, err := os.Stat(path)
	if err != nil {
		return false, true
	}
	return info.IsDir(), false
}
