// Package ignore resolves the top-level entries of a package source
// directory that must not be mirrored or watched.
//
// Only single-segment entries of a .npmignore or .gitignore file are
// considered. Nested entries such as "lib/tmp" are not applied; neither are
// glob patterns, which only match when they literally name an existing entry.
// The result is a snapshot: the ignore file is read once at startup.
package ignore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/arthur-debert/pkgsync/pkg/errors"
	"github.com/arthur-debert/pkgsync/pkg/logging"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// DefaultFileNames are the ignore files looked up, in order of preference
var DefaultFileNames = []string{".npmignore", ".gitignore"}

// Entry is a resolved top-level path that exists on disk
type Entry struct {
	Path string
	Info os.FileInfo
}

// Set is an immutable collection of ignored absolute paths
type Set struct {
	entries map[string]Entry
	source  string
}

// Empty returns a set that ignores nothing
func Empty() *Set {
	return &Set{entries: map[string]Entry{}}
}

// Contains reports whether path is in the set
func (s *Set) Contains(path string) bool {
	if s == nil {
		return false
	}
	_, ok := s.entries[filepath.Clean(path)]
	return ok
}

// Len returns the number of ignored entries
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Paths returns the ignored paths sorted
func (s *Set) Paths() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.entries))
	for p := range s.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Entries returns the ignored entries sorted by path
func (s *Set) Entries() []Entry {
	paths := s.Paths()
	out := make([]Entry, 0, len(paths))
	for _, p := range paths {
		out = append(out, s.entries[p])
	}
	return out
}

// Source is the ignore file the set was read from, empty if none was found
func (s *Set) Source() string {
	if s == nil {
		return ""
	}
	return s.source
}

// Resolve reads the first ignore file found in root and returns the set of
// existing top-level entries it names. A missing ignore file yields an empty
// set. Read errors other than "not found" are returned.
func Resolve(ctx context.Context, fsys afero.Fs, root string, fileNames []string) (*Set, error) {
	logger := logging.GetLogger("ignore")
	if len(fileNames) == 0 {
		fileNames = DefaultFileNames
	}

	source, data, err := readIgnoreFile(fsys, root, fileNames)
	if err != nil {
		return nil, err
	}
	set := Empty()
	set.source = source
	if source == "" {
		logger.Debug().Str("root", root).Msg("No ignore file found")
		return set, nil
	}

	candidates := ParseTopLevel(data)
	logger.Debug().
		Str("file", source).
		Strs("candidates", candidates).
		Msg("Parsed ignore file")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range candidates {
		path := filepath.Join(root, name)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			info, ok := statIfReadable(fsys, path)
			if !ok {
				logger.Debug().Str("path", path).Msg("Ignore file path does not exist")
				return nil
			}
			mu.Lock()
			set.entries[path] = Entry{Path: path, Info: info}
			mu.Unlock()
			logger.Debug().Str("path", path).Msg("Found top level path to exclude")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

// readIgnoreFile returns the path and content of the first candidate that
// exists. It falls through to the next name only when a file is absent.
func readIgnoreFile(fsys afero.Fs, root string, fileNames []string) (string, []byte, error) {
	for _, name := range fileNames {
		path := filepath.Join(root, name)
		data, err := afero.ReadFile(fsys, path)
		if err == nil {
			return path, data, nil
		}
		if os.IsNotExist(err) {
			continue
		}
		return "", nil, errors.Wrapf(err, errors.ErrIgnoreRead, "reading ignore file %s", path)
	}
	return "", nil, nil
}

// statIfReadable checks that path can be opened before stat-ing it
func statIfReadable(fsys afero.Fs, path string) (os.FileInfo, bool) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, false
	}
	_ = f.Close()

	var info os.FileInfo
	if lstater, ok := fsys.(afero.Lstater); ok {
		info, _, err = lstater.LstatIfPossible(path)
	} else {
		info, err = fsys.Stat(path)
	}
	if err != nil {
		return nil, false
	}
	return info, true
}

// ParseTopLevel extracts the single-segment entries of an ignore file.
// Lines have no length limit. Blank lines, comments and negations are
// skipped. A trailing "/" or "/*" and a leading "/" are stripped; anything
// still containing a separator is dropped.
func ParseTopLevel(data []byte) []string {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		line = strings.TrimSuffix(line, "/*")
		line = strings.TrimSuffix(line, "/")
		line = strings.TrimPrefix(line, "/")
		if line == "" || line == "." || line == ".." || strings.Contains(line, "/") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			out = append(out, line)
		}
	}
	return out
}
