package config

import (
	_ "embed"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/pkgsync/pkg/errors"
	"github.com/arthur-debert/pkgsync/pkg/logging"
	"github.com/arthur-debert/pkgsync/pkg/paths"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix starts every environment override
	EnvPrefix = "PKGSYNC_"

	// PackageConfigFile is read from the source directory
	PackageConfigFile = ".pkgsync.toml"

	// UserConfigFile is read from the pkgsync directory under the XDG config home
	UserConfigFile = "config.toml"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

// rawBytesProvider implements koanf provider for raw bytes
type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, stderrors.New("not implemented")
}

// DefaultsContent returns the built-in defaults file
func DefaultsContent() string {
	return string(defaultConfig)
}

// LoadOptions tells Load where to find the optional layers
type LoadOptions struct {
	// ConfigFile replaces the user config. It must exist when set.
	ConfigFile string

	// UserConfigDir overrides $XDG_CONFIG_HOME/pkgsync
	UserConfigDir string

	// WorkingDir resolves a relative source, the process's cwd when empty
	WorkingDir string

	// Overrides are flag values, keyed like the config files ("install.command")
	Overrides map[string]interface{}
}

// Load builds the effective configuration
func Load(opts LoadOptions) (*Config, error) {
	logger := logging.GetLogger("config")

	// The source directory can itself come from any layer but the package
	// file, so it is resolved before that file is looked up.
	first, err := load(opts, "")
	if err != nil {
		return nil, err
	}
	source, err := resolveSource(first.String("source"), opts.WorkingDir)
	if err != nil {
		return nil, err
	}

	k := first
	if source != "" {
		packageFile := filepath.Join(source, PackageConfigFile)
		if _, statErr := os.Stat(packageFile); statErr == nil {
			logger.Debug().Str("path", packageFile).Msg("Loading package config")
			if k, err = load(opts, packageFile); err != nil {
				return nil, err
			}
		}
	}

	cfg, err := unmarshal(k)
	if err != nil {
		return nil, err
	}
	cfg.Source = source

	logger.Debug().
		Str("source", cfg.Source).
		Bool("skipInstall", cfg.SkipInstall).
		Bool("useIgnoreFile", cfg.UseIgnoreFile).
		Msg("Configuration loaded")
	return cfg, nil
}

func load(opts LoadOptions, packageFile string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	// 1. Built-in defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load defaults")
	}

	// 2. User config
	if opts.ConfigFile != "" {
		if err := loadFile(k, opts.ConfigFile); err != nil {
			return nil, err
		}
	} else if path := userConfigPath(opts.UserConfigDir); path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := loadFile(k, path); err != nil {
				return nil, err
			}
		}
	}

	// 3. Package config
	if packageFile != "" {
		if err := loadFile(k, packageFile); err != nil {
			return nil, err
		}
	}

	// 4. Environment
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load environment")
	}

	// 5. Flags
	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load flags")
		}
	}
	return k, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return errors.Wrapf(err, errors.ErrConfigLoad, "failed to load config from %s", path)
	}
	return nil
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to unmarshal configuration")
	}
	return &cfg, nil
}

// envKey maps PKGSYNC_INSTALL_TIMEOUT to install.timeout and
// PKGSYNC_SKIP_INSTALL to skip_install.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range []string{"install", "log"} {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}
	return key
}

func resolveSource(source, workingDir string) (string, error) {
	if source == "" {
		return "", nil
	}
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, errors.ErrConfigLoad, "cannot determine working directory")
		}
		workingDir = wd
	}
	return paths.Resolve(workingDir, source), nil
}

// UserConfigPath is where the user config is looked up by default
func UserConfigPath() string {
	return userConfigPath("")
}

// userConfigPath respects XDG_CONFIG_HOME if set, otherwise uses the xdg default
func userConfigPath(dir string) string {
	if dir == "" {
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			configHome = xdg.ConfigHome
		}
		if configHome == "" {
			return ""
		}
		dir = filepath.Join(configHome, logging.AppName)
	}
	return filepath.Join(dir, UserConfigFile)
}
