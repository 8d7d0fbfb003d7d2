// Package mirror implements the idempotent filesystem primitives used to
// mirror a source tree into a destination tree.
//
// Concurrent requests to create the same directory collapse into a single
// in-flight creation; the pending entry is dropped once that creation
// settles, whatever its outcome. "Already exists" and "already gone" are
// successes. Everything else is returned as a coded error and is expected to
// be treated as fatal by the caller.
package mirror

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/arthur-debert/pkgsync/pkg/errors"
	"github.com/arthur-debert/pkgsync/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

const dirPerm fs.FileMode = 0755

// Mirror performs copy, remove and directory creation on a filesystem
type Mirror struct {
	fs      afero.Fs
	pending singleflight.Group
	logger  zerolog.Logger
}

// New creates a Mirror operating on fsys
func New(fsys afero.Fs) *Mirror {
	return &Mirror{
		fs:     fsys,
		logger: logging.GetLogger("mirror"),
	}
}

// EnsureDirectoryChain makes sure path and every ancestor of it exist.
// Ancestors are created before descendants.
func (m *Mirror) EnsureDirectoryChain(path string) error {
	if !filepath.IsAbs(path) {
		return errors.Newf(errors.ErrInvalidInput, "directory path must be absolute: %s", path)
	}
	path = filepath.Clean(path)

	exists, err := m.isDir(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if parent := filepath.Dir(path); parent != path {
		m.logger.Trace().Str("path", parent).Msg("Ensuring parent directory")
		if err := m.EnsureDirectoryChain(parent); err != nil {
			return err
		}
	}
	return m.makeDir(path)
}

// makeDir creates a single directory, sharing the result with any caller
// that asks for the same path while the creation is in flight.
func (m *Mirror) makeDir(path string) error {
	_, err, shared := m.pending.Do(path, func() (interface{}, error) {
		exists, err := m.isDir(path)
		if err != nil || exists {
			if exists {
				m.logger.Debug().Str("path", path).Msg("Directory already exists")
			}
			return nil, err
		}

		m.logger.Debug().Str("path", path).Msg("Making directory")
		if err := m.fs.Mkdir(path, dirPerm); err != nil {
			if os.IsExist(err) {
				return nil, nil
			}
			return nil, errors.Wrapf(err, errors.ErrDirCreate, "creating directory %s", path)
		}
		return nil, nil
	})
	if shared {
		m.logger.Trace().Str("path", path).Msg("Shared pending directory creation")
	}
	return err
}

func (m *Mirror) isDir(path string) (bool, error) {
	info, err := m.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, errors.ErrDirCreate, "checking directory %s", path)
	}
	if !info.IsDir() {
		return false, errors.Newf(errors.ErrDirCreate, "%s exists and is not a directory", path).
			WithDetail("path", path)
	}
	return true, nil
}

// CopyFile copies the full content of src to dst, creating dst's parent
// directories as needed. dst is overwritten in place and takes src's
// permission bits.
func (m *Mirror) CopyFile(src, dst string) error {
	if !filepath.IsAbs(src) {
		return errors.Newf(errors.ErrInvalidInput, "source path must be absolute: %s", src)
	}
	if !filepath.IsAbs(dst) {
		return errors.Newf(errors.ErrInvalidInput, "destination path must be absolute: %s", dst)
	}

	m.logger.Debug().Str("src", src).Msg("Reading file to copy")
	info, err := m.fs.Stat(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileRead, "reading %s", src)
	}
	if info.IsDir() {
		return errors.Newf(errors.ErrInvalidInput, "cannot copy directory %s as a file", src)
	}
	data, err := afero.ReadFile(m.fs, src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileRead, "reading %s", src)
	}

	if err := m.EnsureDirectoryChain(filepath.Dir(dst)); err != nil {
		return err
	}

	perm := info.Mode().Perm()
	if err := afero.WriteFile(m.fs, dst, data, perm); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "writing %s", dst)
	}
	if err := m.fs.Chmod(dst, perm); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "setting mode on %s", dst)
	}

	m.logger.Debug().Str("dst", dst).Int("bytes", len(data)).Msg("Wrote copied file")
	return nil
}

// RemoveFile deletes a single file. A file that is already gone is not an error.
func (m *Mirror) RemoveFile(dst string) error {
	if err := m.fs.Remove(dst); err != nil {
		if os.IsNotExist(err) {
			m.logger.Debug().Str("path", dst).Msg("File already absent")
			return nil
		}
		return errors.Wrapf(err, errors.ErrFileRemove, "removing %s", dst)
	}
	return nil
}

// RemoveDirectoryTree deletes dst and everything below it. There is no retry.
func (m *Mirror) RemoveDirectoryTree(dst string) error {
	m.logger.Debug().Str("path", dst).Msg("Removing directory")
	if err := m.fs.RemoveAll(dst); err != nil {
		return errors.Wrapf(err, errors.ErrDirRemove, "removing directory %s", dst)
	}
	return nil
}
