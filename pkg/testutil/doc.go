// Package testutil provides helpers for tests that run against the real
// filesystem and watch it change.
//
// Key components:
//   - CreateFile, CreateDir, CreateSymlink: build source and destination trees
//   - ReadOrEmpty, Exists: check a tree from inside require.Eventually
//   - Isolate: point config, state and colour settings away from the user's
//   - SyncBuffer: capture output a running command is still writing
package testutil
