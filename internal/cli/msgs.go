package cli

import (
	_ "embed"
	"strings"
)

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort       = "Install a local package and keep it in sync with its source"
	MsgVersionShort    = "Print version information"
	MsgConfigShort     = "Print the effective configuration"
	MsgConfigLong      = "Config prints the configuration every layer adds up to, as TOML, in the format the config files use."
	MsgCompletionShort = "Generate shell completion script"

	// Flag descriptions
	MsgFlagDir           = "Source package directory to install and watch"
	MsgFlagName          = "Package name (default: name from package.json)"
	MsgFlagUseIgnoreFile = "Exclude top-level entries listed in .npmignore/.gitignore"
	MsgFlagSelf          = "Install into the source package's own node_modules"
	MsgFlagSkipInstall   = "Do not install, sync into the existing install"
	MsgFlagConfig        = "Config file to use instead of the user config"
	MsgFlagVerbose       = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagDefaults      = "Print the built-in defaults file instead"

	// Error messages
	MsgErrWorkingDir = "cannot determine working directory: %w"
	MsgErrShell      = "unknown shell %q, expected bash, zsh, fish or powershell"
)

// Long messages from embedded files
var (
	//go:embed msgs/root-long.txt
	msgRootLongRaw string
	MsgRootLong    = strings.TrimSpace(msgRootLongRaw)

	//go:embed msgs/completion-long.txt
	msgCompletionLongRaw string
	MsgCompletionLong    = strings.TrimSpace(msgCompletionLongRaw)
)
