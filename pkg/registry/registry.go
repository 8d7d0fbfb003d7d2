package registry

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/arthur-debert/pkgsync/pkg/errors"
	"github.com/arthur-debert/pkgsync/pkg/fswatch"
	"github.com/arthur-debert/pkgsync/pkg/logging"
	"github.com/rs/zerolog"
)

// DefaultHiddenPrefix marks hidden entries
const DefaultHiddenPrefix = "."

// Config configures a Registry
type Config struct {
	// SourceRoot anchors the hidden-entry check. Components of a path above
	// the source root are never considered hidden.
	SourceRoot string

	// HiddenPrefix defaults to DefaultHiddenPrefix
	HiddenPrefix string

	// OnError receives the error of every watcher that stops on failure
	OnError func(root string, err error)
}

// WatchOptions are the per-watcher settings a caller may add
type WatchOptions struct {
	// Recursive watches the whole subtree
	Recursive bool

	// Ignored is OR-ed with the default hidden-entry filter
	Ignored func(path string, isDir bool) bool

	// SyncOnStart makes the watcher report its existing tree once
	SyncOnStart bool
}

// Registry tracks active watchers
type Registry struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	watchers map[string]*fswatch.Watcher
	closed   bool
}

// New creates an empty registry
func New(cfg Config) *Registry {
	if cfg.HiddenPrefix == "" {
		cfg.HiddenPrefix = DefaultHiddenPrefix
	}
	cfg.SourceRoot = filepath.Clean(cfg.SourceRoot)
	return &Registry{
		cfg:      cfg,
		logger:   logging.GetLogger("registry"),
		watchers: make(map[string]*fswatch.Watcher),
	}
}

// CreateWatcher starts a watcher rooted at path and delivers its events to
// h. When path is already watched it logs and returns nil, nil; callers
// treat that as a no-op.
func (r *Registry) CreateWatcher(ctx context.Context, path string, opts WatchOptions, h fswatch.Handler) (*fswatch.Watcher, error) {
	path = filepath.Clean(path)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.Newf(errors.ErrWatch, "registry closed, cannot watch %s", path)
	}
	if _, exists := r.watchers[path]; exists {
		r.mu.Unlock()
		r.logger.Warn().
			Err(errors.Newf(errors.ErrWatchExists, "already watching %s", path)).
			Str("path", path).
			Msg("Watcher already registered")
		return nil, nil
	}

	var w *fswatch.Watcher
	w = fswatch.New(path, fswatch.Options{
		Recursive:   opts.Recursive,
		Ignored:     r.ignoredFunc(opts.Ignored),
		SyncOnStart: opts.SyncOnStart,
		OnError: func(err error) {
			r.drop(path, w)
			r.escalate(path, err)
		},
	})
	// The slot is taken before Start so concurrent callers see it
	r.watchers[path] = w
	r.mu.Unlock()

	if err := w.Start(ctx, h); err != nil {
		r.drop(path, w)
		return nil, err
	}
	r.logger.Debug().
		Str("path", path).
		Bool("recursive", opts.Recursive).
		Msg("Watcher created")
	return w, nil
}

// Has reports whether path is watched
func (r *Registry) Has(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.watchers[filepath.Clean(path)]
	return ok
}

// Len returns the number of active watchers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers)
}

// Paths returns the watched roots sorted
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.watchers))
	for p := range r.watchers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Close stops every watcher and rejects further registrations
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	watchers := r.watchers
	r.watchers = make(map[string]*fswatch.Watcher)
	r.mu.Unlock()

	for path, w := range watchers {
		if err := w.Close(); err != nil {
			r.logger.Warn().Err(err).Str("path", path).Msg("Failed to close watcher")
		}
	}
	r.logger.Debug().Int("count", len(watchers)).Msg("Registry closed")
	return nil
}

// IsHidden reports whether any component of path below the source root
// starts with the hidden prefix.
func (r *Registry) IsHidden(path string) bool {
	rel, err := filepath.Rel(r.cfg.SourceRoot, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == ".." || part == "." {
			continue
		}
		if strings.HasPrefix(part, r.cfg.HiddenPrefix) {
			return true
		}
	}
	return false
}

func (r *Registry) ignoredFunc(extra func(string, bool) bool) func(string, bool) bool {
	return func(path string, isDir bool) bool {
		if r.IsHidden(path) {
			return true
		}
		return extra != nil && extra(path, isDir)
	}
}

// drop removes w, unless path has been taken over by another watcher
func (r *Registry) drop(path string, w *fswatch.Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watchers[path] == w {
		delete(r.watchers, path)
	}
}

func (r *Registry) escalate(path string, err error) {
	r.logger.Error().Err(err).Str("path", path).Msg("Watcher failed, removed from registry")
	if r.cfg.OnError != nil {
		r.cfg.OnError(path, err)
	}
}
