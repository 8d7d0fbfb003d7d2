// Package linker wires the watchers that keep an installed package in sync
// with its source directory.
//
// Service.Start resolves the ignore set, starts the growth watcher on the
// source root and creates one recursive watcher per eligible top-level
// entry. Service.Run then blocks until the context ends or a watcher fails.
//
// Top-level entries are eligible unless they are hidden, excluded by name
// (node_modules by default), listed in the ignore set, or symlinks. The
// growth watcher applies the same rules to entries created later: it
// mirrors a new entry and then promotes it to a recursive watch.
package linker
