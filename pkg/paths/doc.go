// Package paths provides path handling for pkgsync.
//
// The central type is Mapper, which re-roots paths from the package source
// directory onto the installed destination directory:
//
//	m, err := paths.NewMapper("/home/me/src/widget", "/home/me/app/node_modules/widget")
//	m.MapToDestination("/home/me/src/widget/lib/index.js")
//	// /home/me/app/node_modules/widget/lib/index.js
//
// The relative component is preserved exactly, including intermediate
// directory names. Mapping a path outside the source root is undefined; the
// watchers never produce such paths.
//
// The package also resolves where a package gets installed
// (InstallDestination) and expands a leading ~ in user supplied paths.
package paths
