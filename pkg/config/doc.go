// Package config loads pkgsync's configuration.
//
// Layers are applied in order, each overriding the previous one:
//
//  1. built-in defaults (embedded/defaults.toml)
//  2. the user config, $XDG_CONFIG_HOME/pkgsync/config.toml, or the file
//     given with --config
//  3. the package config, <source>/.pkgsync.toml
//  4. PKGSYNC_* environment variables
//  5. command line flags
package config
