package linker

import (
	"context"

	"github.com/arthur-debert/pkgsync/pkg/output"
	"github.com/arthur-debert/pkgsync/pkg/registry"
)

// growthHandler reacts to new direct children of the source root. Removals
// are left to the entry's own recursive watcher. An entry that already has
// a watcher was deleted and re-created; that watcher mirrors it, so only one
// goroutine copies it.
type growthHandler struct {
	s   *Service
	ctx context.Context
}

func (g *growthHandler) OnAdd(path string) error {
	s := g.s
	if s.registry.Has(path) {
		return nil
	}
	if err := s.mirror.CopyFile(path, s.mapper.MapToDestination(path)); err != nil {
		return err
	}
	return g.promote(path, output.MsgWatchingNewFile)
}

func (g *growthHandler) OnChange(path string) error { return nil }

func (g *growthHandler) OnUnlink(path string) error { return nil }

func (g *growthHandler) OnAddDir(path string) error {
	s := g.s
	if s.registry.Has(path) {
		return nil
	}
	if err := s.mirror.EnsureDirectoryChain(s.mapper.MapToDestination(path)); err != nil {
		return err
	}
	return g.promote(path, output.MsgWatchingNewDir)
}

func (g *growthHandler) OnUnlinkDir(path string) error { return nil }

// promote hands path over to a recursive watcher. The watcher first syncs
// what path holds by then, so content written between the copy above and
// the watch being attached still reaches the destination. An existing
// watcher for path means it was already promoted.
func (g *growthHandler) promote(path, msg string) error {
	s := g.s
	w, err := s.registry.CreateWatcher(g.ctx, path, registry.WatchOptions{
		Recursive:   true,
		SyncOnStart: true,
	}, s.propagator)
	if err != nil {
		return err
	}
	if w != nil {
		s.out.Event(msg, path)
	}
	return nil
}
