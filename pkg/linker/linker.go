package linker

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/pkgsync/pkg/errors"
	"github.com/arthur-debert/pkgsync/pkg/ignore"
	"github.com/arthur-debert/pkgsync/pkg/logging"
	"github.com/arthur-debert/pkgsync/pkg/mirror"
	"github.com/arthur-debert/pkgsync/pkg/output"
	"github.com/arthur-debert/pkgsync/pkg/paths"
	"github.com/arthur-debert/pkgsync/pkg/propagate"
	"github.com/arthur-debert/pkgsync/pkg/registry"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Options configures a Service
type Options struct {
	SourceRoot string
	DestRoot   string

	// UseIgnoreFile enables the ignore set, read from the first of IgnoreFiles found
	UseIgnoreFile bool
	IgnoreFiles   []string

	HiddenPrefix  string
	ExcludedNames []string

	// Fs defaults to the OS filesystem. Watchers always observe the OS.
	Fs afero.Fs
}

// Service owns every piece of state of one sync session
type Service struct {
	opts       Options
	fs         afero.Fs
	mapper     *paths.Mapper
	mirror     *mirror.Mirror
	registry   *registry.Registry
	propagator *propagate.Propagator
	out        *output.Printer
	logger     zerolog.Logger

	ignored *ignore.Set
	errs    chan error
}

// New creates a Service. A nil printer discards confirmations.
func New(opts Options, out *output.Printer) (*Service, error) {
	if opts.SourceRoot == "" || opts.DestRoot == "" {
		return nil, errors.New(errors.ErrInvalidInput, "source and destination roots are required")
	}
	mapper, err := paths.NewMapper(opts.SourceRoot, opts.DestRoot)
	if err != nil {
		return nil, err
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.HiddenPrefix == "" {
		opts.HiddenPrefix = registry.DefaultHiddenPrefix
	}
	if out == nil {
		out = output.Discard()
	}

	s := &Service{
		opts:    opts,
		fs:      opts.Fs,
		mapper:  mapper,
		mirror:  mirror.New(opts.Fs),
		out:     out,
		logger:  logging.GetLogger("linker"),
		ignored: ignore.Empty(),
		errs:    make(chan error, 1),
	}
	s.propagator = propagate.New(mapper, s.mirror, out)
	s.registry = registry.New(registry.Config{
		SourceRoot:   mapper.SourceRoot(),
		HiddenPrefix: opts.HiddenPrefix,
		OnError: func(root string, err error) {
			s.fail(err)
		},
	})
	return s, nil
}

// Start sets up every watcher and returns once all of them are ready
func (s *Service) Start(ctx context.Context) error {
	done := logging.LogOperationStart(s.logger, "start watchers")
	defer done()

	src := s.mapper.SourceRoot()
	if s.opts.UseIgnoreFile {
		set, err := ignore.Resolve(ctx, s.fs, src, s.opts.IgnoreFiles)
		if err != nil {
			return err
		}
		s.ignored = set
		s.logger.Info().
			Str("file", set.Source()).
			Strs("paths", set.Paths()).
			Msg("Top level paths excluded by ignore file")
	}

	growth := &growthHandler{s: s, ctx: ctx}
	if _, err := s.registry.CreateWatcher(ctx, src, registry.WatchOptions{
		Recursive: false,
		Ignored:   s.growthIgnored,
	}, growth); err != nil {
		return err
	}
	s.logger.Debug().Str("root", src).Msg("Watching root directory for added files/directories")

	entries, err := s.topLevelEntries()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, path := range entries {
		path := path
		g.Go(func() error {
			w, err := s.registry.CreateWatcher(ctx, path, registry.WatchOptions{Recursive: true}, s.propagator)
			if err != nil || w == nil {
				return err
			}
			select {
			case <-w.Ready():
				s.logger.Debug().Str("path", path).Msg("Scanned, watching for changes")
				return nil
			case <-w.Done():
				return errors.Newf(errors.ErrWatch, "watcher for %s stopped before it was ready", path)
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.out.Event(output.MsgWatchersCreated, src)
	return nil
}

// Run blocks until ctx ends, returning nil, or a watcher fails, returning
// its error.
func (s *Service) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		s.logger.Info().Msg("Stopping, context done")
		return nil
	case err := <-s.errs:
		return err
	}
}

// Close stops every watcher
func (s *Service) Close() error {
	return s.registry.Close()
}

// WatchedPaths lists the roots currently under watch
func (s *Service) WatchedPaths() []string {
	return s.registry.Paths()
}

// IgnoreSet returns the ignore set resolved by Start
func (s *Service) IgnoreSet() *ignore.Set {
	return s.ignored
}

// fail records the first fatal error; later ones are only logged
func (s *Service) fail(err error) {
	select {
	case s.errs <- err:
	default:
		s.logger.Error().Err(err).Msg("Additional watcher failure")
	}
}

// topLevelEntries lists the direct children of the source root to watch
func (s *Service) topLevelEntries() ([]string, error) {
	src := s.mapper.SourceRoot()
	infos, err := afero.ReadDir(s.fs, src)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileRead, "listing %s", src)
	}

	var out []string
	for _, info := range infos {
		path := filepath.Join(src, info.Name())
		if s.excluded(path) {
			s.logger.Debug().Str("path", path).Msg("Will not create watcher for path")
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			s.logger.Debug().Str("path", path).Msg("Skipping symlink")
			continue
		}
		out = append(out, path)
	}
	return out, nil
}

// excluded applies the top-level rules to a direct child of the source root
func (s *Service) excluded(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, s.opts.HiddenPrefix) {
		return true
	}
	for _, excluded := range s.opts.ExcludedNames {
		if name == excluded {
			return true
		}
	}
	return s.ignored.Contains(path)
}

func (s *Service) growthIgnored(path string, isDir bool) bool {
	return !s.mapper.IsTopLevel(path) || s.excluded(path)
}
