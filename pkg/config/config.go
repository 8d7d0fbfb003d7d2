package config

import (
	"time"

	"github.com/arthur-debert/pkgsync/pkg/errors"
	"github.com/pelletier/go-toml/v2"
)

// Config is the effective configuration
type Config struct {
	Source        string        `koanf:"source"`
	Name          string        `koanf:"name"`
	Self          bool          `koanf:"self"`
	SkipInstall   bool          `koanf:"skip_install"`
	UseIgnoreFile bool          `koanf:"use_ignore_file"`
	IgnoreFiles   []string      `koanf:"ignore_files"`
	HiddenPrefix  string        `koanf:"hidden_prefix"`
	ExcludedNames []string      `koanf:"excluded_names"`
	Install       InstallConfig `koanf:"install"`
	Log           LogConfig     `koanf:"log"`
}

// InstallConfig configures the install step
type InstallConfig struct {
	Command string        `koanf:"command"`
	Timeout time.Duration `koanf:"timeout"`
}

// LogConfig configures logging
type LogConfig struct {
	Verbosity  int `koanf:"verbosity"`
	MaxSizeMB  int `koanf:"max_size_mb"`
	MaxBackups int `koanf:"max_backups"`
}

// Validate checks values that no layer may leave invalid. A missing source
// is not an error here; the CLI handles it by printing help.
func (c *Config) Validate() error {
	switch {
	case c.HiddenPrefix == "":
		return errors.New(errors.ErrConfigValid, "hidden_prefix must not be empty")
	case !c.SkipInstall && c.Install.Command == "":
		return errors.New(errors.ErrConfigValid, "install.command must be set unless skip_install is true")
	case c.Install.Timeout <= 0:
		return errors.Newf(errors.ErrConfigValid, "install.timeout must be positive, got %s", c.Install.Timeout)
	case c.Log.Verbosity < 0:
		return errors.Newf(errors.ErrConfigValid, "log.verbosity must not be negative, got %d", c.Log.Verbosity)
	case c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0:
		return errors.New(errors.ErrConfigValid, "log rotation values must not be negative")
	}
	if c.UseIgnoreFile && len(c.IgnoreFiles) == 0 {
		return errors.New(errors.ErrConfigValid, "use_ignore_file is set but ignore_files is empty")
	}
	return nil
}

type dumpInstall struct {
	Command string `toml:"command"`
	Timeout string `toml:"timeout"`
}

type dumpLog struct {
	Verbosity  int `toml:"verbosity"`
	MaxSizeMB  int `toml:"max_size_mb"`
	MaxBackups int `toml:"max_backups"`
}

type dumpConfig struct {
	Source        string      `toml:"source"`
	Name          string      `toml:"name"`
	Self          bool        `toml:"self"`
	SkipInstall   bool        `toml:"skip_install"`
	UseIgnoreFile bool        `toml:"use_ignore_file"`
	IgnoreFiles   []string    `toml:"ignore_files"`
	HiddenPrefix  string      `toml:"hidden_prefix"`
	ExcludedNames []string    `toml:"excluded_names"`
	Install       dumpInstall `toml:"install"`
	Log           dumpLog     `toml:"log"`
}

// Dump renders the configuration as TOML, in the format the config files use
func (c *Config) Dump() (string, error) {
	out, err := toml.Marshal(dumpConfig{
		Source:        c.Source,
		Name:          c.Name,
		Self:          c.Self,
		SkipInstall:   c.SkipInstall,
		UseIgnoreFile: c.UseIgnoreFile,
		IgnoreFiles:   c.IgnoreFiles,
		HiddenPrefix:  c.HiddenPrefix,
		ExcludedNames: c.ExcludedNames,
		Install:       dumpInstall{Command: c.Install.Command, Timeout: c.Install.Timeout.String()},
		Log:           dumpLog(c.Log),
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrInternal, "rendering configuration")
	}
	return string(out), nil
}
