// Package propagate mirrors watcher events from the source tree into the
// destination tree.
//
//	file added       -> copy to the mapped destination
//	file changed     -> copy to the mapped destination
//	file removed     -> remove the mapped destination file
//	directory added  -> ensure the mapped destination directory chain
//	directory removed -> remove the mapped destination tree
//
// Failures are returned to the watcher, which stops and escalates them.
// Nothing is retried.
package propagate

import (
	"path/filepath"

	"github.com/arthur-debert/pkgsync/pkg/errors"
	"github.com/arthur-debert/pkgsync/pkg/logging"
	"github.com/arthur-debert/pkgsync/pkg/mirror"
	"github.com/arthur-debert/pkgsync/pkg/output"
	"github.com/arthur-debert/pkgsync/pkg/paths"
	"github.com/rs/zerolog"
)

// Propagator implements fswatch.Handler
type Propagator struct {
	mapper *paths.Mapper
	mirror *mirror.Mirror
	out    *output.Printer
	logger zerolog.Logger
}

// New creates a Propagator. A nil printer discards confirmations.
func New(mapper *paths.Mapper, m *mirror.Mirror, out *output.Printer) *Propagator {
	if out == nil {
		out = output.Discard()
	}
	return &Propagator{
		mapper: mapper,
		mirror: m,
		out:    out,
		logger: logging.GetLogger("propagate"),
	}
}

// OnAdd copies a new file
func (p *Propagator) OnAdd(path string) error {
	return p.copy(path)
}

// OnChange copies a modified file
func (p *Propagator) OnChange(path string) error {
	return p.copy(path)
}

// OnUnlink removes the destination copy of a deleted file
func (p *Propagator) OnUnlink(path string) error {
	dst := p.mapper.MapToDestination(path)
	p.logger.Debug().Str("source", path).Str("destination", dst).Msg("File removed in source")
	if err := p.mirror.RemoveFile(dst); err != nil {
		return p.wrap(err, path)
	}
	p.out.Event(output.MsgFileRemoved, filepath.Base(path))
	return nil
}

// OnAddDir creates the destination directory of a new directory
func (p *Propagator) OnAddDir(path string) error {
	dst := p.mapper.MapToDestination(path)
	p.logger.Debug().Str("source", path).Str("destination", dst).Msg("Directory added in source")
	if err := p.mirror.EnsureDirectoryChain(dst); err != nil {
		return p.wrap(err, path)
	}
	p.out.Event(output.MsgDirAdded, p.mapper.Relative(path))
	return nil
}

// OnUnlinkDir removes the destination tree of a deleted directory
func (p *Propagator) OnUnlinkDir(path string) error {
	dst := p.mapper.MapToDestination(path)
	p.logger.Debug().Str("source", path).Str("destination", dst).Msg("Directory removed in source")
	if err := p.mirror.RemoveDirectoryTree(dst); err != nil {
		return p.wrap(err, path)
	}
	p.out.Event(output.MsgDirRemoved, p.mapper.Relative(path))
	return nil
}

func (p *Propagator) copy(path string) error {
	dst := p.mapper.MapToDestination(path)
	p.logger.Debug().Str("source", path).Str("destination", dst).Msg("File changed in source")
	if err := p.mirror.CopyFile(path, dst); err != nil {
		return p.wrap(err, path)
	}
	p.out.Event(output.MsgFileUpdated, filepath.Base(path))
	return nil
}

// wrap keeps the code of the mirror error and names the source path
func (p *Propagator) wrap(err error, path string) error {
	return errors.Wrapf(err, errors.GetErrorCode(err), "propagating %s", p.mapper.Relative(path))
}
