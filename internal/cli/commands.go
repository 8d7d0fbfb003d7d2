package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/arthur-debert/pkgsync/internal/version"
	"github.com/arthur-debert/pkgsync/pkg/config"
	"github.com/arthur-debert/pkgsync/pkg/install"
	"github.com/arthur-debert/pkgsync/pkg/linker"
	"github.com/arthur-debert/pkgsync/pkg/logging"
	"github.com/arthur-debert/pkgsync/pkg/manifest"
	"github.com/arthur-debert/pkgsync/pkg/output"
	"github.com/arthur-debert/pkgsync/pkg/paths"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// flags holds the command line values. Only flags the user actually set
// override the config layers.
type flags struct {
	dir           string
	name          string
	useIgnoreFile bool
	self          bool
	skipInstall   bool
	configFile    string
	verbosity     int
}

// app carries what the commands need from the outside world
type app struct {
	flags flags

	fs           afero.Fs
	getwd        func() (string, error)
	newInstaller func(cfg *config.Config) install.Installer
}

func newApp() *app {
	return &app{
		fs:    afero.NewOsFs(),
		getwd: os.Getwd,
		newInstaller: func(cfg *config.Config) install.Installer {
			return install.NewNPM(cfg.Install.Command, cfg.Install.Timeout)
		},
	}
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	return newApp().rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "pkgsync",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		Args:    cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging based on verbosity
			logging.SetupLogger(a.flags.verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE:          a.runSync,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		DisableAutoGenTag: true,
	}

	// Global flags, persistent so that `config` reflects them too
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.flags.dir, "dir", "d", "", MsgFlagDir)
	pf.StringVarP(&a.flags.name, "name", "n", "", MsgFlagName)
	pf.BoolVarP(&a.flags.useIgnoreFile, "use-ignore-file", "i", false, MsgFlagUseIgnoreFile)
	pf.BoolVarP(&a.flags.self, "self", "s", false, MsgFlagSelf)
	pf.BoolVar(&a.flags.skipInstall, "skip-install", false, MsgFlagSkipInstall)
	pf.StringVar(&a.flags.configFile, "config", "", MsgFlagConfig)
	pf.CountVarP(&a.flags.verbosity, "verbose", "v", MsgFlagVerbose)
	_ = rootCmd.MarkPersistentFlagDirname("dir")
	_ = rootCmd.MarkPersistentFlagFilename("config", "toml")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(a.newConfigCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// loadConfig layers the config sources with the flags that were set
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	wd, err := a.getwd()
	if err != nil {
		return nil, fmt.Errorf(MsgErrWorkingDir, err)
	}

	overrides := map[string]interface{}{}
	set := func(flag, key string, value interface{}) {
		if cmd.Flags().Changed(flag) {
			overrides[key] = value
		}
	}
	set("dir", "source", a.flags.dir)
	set("name", "name", a.flags.name)
	set("use-ignore-file", "use_ignore_file", a.flags.useIgnoreFile)
	set("self", "self", a.flags.self)
	set("skip-install", "skip_install", a.flags.skipInstall)
	set("verbose", "log.verbosity", a.flags.verbosity)

	return config.Load(config.LoadOptions{
		ConfigFile: a.flags.configFile,
		WorkingDir: wd,
		Overrides:  overrides,
	})
}

// runSync installs the package and mirrors its source until the context
// ends or a watcher fails
func (a *app) runSync(cmd *cobra.Command, args []string) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Source == "" {
		return cmd.Help()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logging.Setup(logging.Options{
		Verbosity:  cfg.Log.Verbosity,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	logger := logging.GetLogger("cli")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	m, err := manifest.Read(a.fs, cfg.Source)
	if err != nil {
		return err
	}
	name := cfg.Name
	if name == "" {
		name = m.Name
	}
	if len(m.Files) > 0 {
		logger.Warn().
			Strs("files", m.Files).
			Msg("package.json limits the published files; entries outside the list are still synced")
	}

	projectDir, err := a.getwd()
	if err != nil {
		return fmt.Errorf(MsgErrWorkingDir, err)
	}
	if cfg.Self {
		projectDir = cfg.Source
	}
	dest := paths.InstallDestination(projectDir, name)
	logger.Info().
		Str("source", cfg.Source).
		Str("destination", dest).
		Str("package", name).
		Msg("Resolved package")

	if cfg.SkipInstall {
		if err := install.CheckDestination(a.fs, dest); err != nil {
			return err
		}
		out.Event(output.MsgSkipInstall, dest)
	} else {
		out.Event(output.MsgInstalling, cfg.Source)
		if err := a.newInstaller(cfg).Install(ctx, cfg.Source, projectDir); err != nil {
			return err
		}
		out.Event(output.MsgInstalled, name)
	}

	svc, err := linker.New(linker.Options{
		SourceRoot:    cfg.Source,
		DestRoot:      dest,
		UseIgnoreFile: cfg.UseIgnoreFile,
		IgnoreFiles:   cfg.IgnoreFiles,
		HiddenPrefix:  cfg.HiddenPrefix,
		ExcludedNames: cfg.ExcludedNames,
		Fs:            a.fs,
	}, out)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close watchers")
		}
	}()

	if err := svc.Start(ctx); err != nil {
		return err
	}
	return svc.Run(ctx)
}

// newPrinter writes to the command's streams. Each is colored only when it
// is a terminal.
func newPrinter(cmd *cobra.Command) (*output.Printer, error) {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	return output.New(out, errOut, output.WriterNoColor(out), output.WriterNoColor(errOut))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: MsgVersionShort,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), version.String())
		},
	}
}

func (a *app) newConfigCmd() *cobra.Command {
	var defaults bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: MsgConfigShort,
		Long:  MsgConfigLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if defaults {
				_, err := fmt.Fprint(cmd.OutOrStdout(), config.DefaultsContent())
				return err
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			dump, err := cfg.Dump()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), dump)
			return err
		},
	}
	cmd.Flags().BoolVar(&defaults, "defaults", false, MsgFlagDefaults)
	return cmd
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "completion [bash|zsh|fish|powershell]",
		Short:                 MsgCompletionShort,
		Long:                  MsgCompletionLong,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(w, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(w)
			case "fish":
				return cmd.Root().GenFishCompletion(w, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(w)
			}
			return fmt.Errorf(MsgErrShell, args[0])
		},
	}
}
