// Package fswatch turns fsnotify notifications into add, change and unlink
// events for a single watched root.
//
// The root may be a file or a directory. Its parent directory is watched as
// well so that deletion and re-creation of the root itself is observed.
// Entries that exist when the watcher starts produce no events unless
// Options.SyncOnStart is set; Ready is closed once they have been enumerated.
//
// Events of one watcher are delivered to its Handler sequentially, in the
// order fsnotify reports them. The first error returned by the Handler, or
// reported by fsnotify, stops the watcher.
package fswatch
