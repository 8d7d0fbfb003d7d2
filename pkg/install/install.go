// Package install performs the one-time install of the source package into
// the project before any watcher starts.
//
// The package is packed and the tarball installed, so the project ends up
// with real files rather than a symlink back to the source.
package install

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/arthur-debert/pkgsync/pkg/errors"
	"github.com/arthur-debert/pkgsync/pkg/logging"
	"github.com/arthur-debert/pkgsync/pkg/manifest"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// DefaultCommand is the package manager binary
const DefaultCommand = "npm"

// DefaultTimeout bounds each package manager invocation
const DefaultTimeout = 5 * time.Minute

// Installer installs the package found in sourceDir into projectDir
type Installer interface {
	Install(ctx context.Context, sourceDir, projectDir string) error
}

// Runner runs a command in dir and returns its standard output
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	Timeout time.Duration
	logger  zerolog.Logger
}

// NewExecRunner creates an ExecRunner. A zero timeout means DefaultTimeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRunner{Timeout: timeout, logger: logging.GetLogger("install.exec")}
}

// Run executes name with args in dir
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	r.logger.Info().
		Str("command", name).
		Strs("args", args).
		Str("workingDir", dir).
		Msg("Executing command")

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stdout.Len() > 0 {
		r.logger.Debug().Str("output", stdout.String()).Msg("Command stdout")
	}
	if stderr.Len() > 0 {
		r.logger.Debug().Str("output", stderr.String()).Msg("Command stderr")
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return stdout.Bytes(), errors.Wrapf(ctx.Err(), errors.ErrInstall,
				"%s timed out after %s", name, r.Timeout)
		}
		return stdout.Bytes(), errors.Wrapf(err, errors.ErrInstall,
			"%s %s failed: %s", name, strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// NPMInstaller packs the source package and installs the tarball
type NPMInstaller struct {
	Command string
	Runner  Runner
	Fs      afero.Fs
	logger  zerolog.Logger
}

// NewNPM creates an NPMInstaller running command through os/exec
func NewNPM(command string, timeout time.Duration) *NPMInstaller {
	if command == "" {
		command = DefaultCommand
	}
	return &NPMInstaller{
		Command: command,
		Runner:  NewExecRunner(timeout),
		Fs:      afero.NewOsFs(),
		logger:  logging.GetLogger("install"),
	}
}

// Install runs `<command> pack <sourceDir>` and `<command> install <tarball>`
// in projectDir, then removes the tarball.
func (n *NPMInstaller) Install(ctx context.Context, sourceDir, projectDir string) error {
	done := logging.LogOperationStart(n.logger, "install")
	defer done()

	m, err := manifest.Read(n.Fs, sourceDir)
	if err != nil {
		return errors.Wrap(err, errors.ErrInstall, "cannot install package")
	}
	if m.Version == "" {
		return errors.Newf(errors.ErrInstall, "package %q has no version, it cannot be packed", m.Name)
	}

	out, err := n.Runner.Run(ctx, projectDir, n.Command, "pack", sourceDir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInstall, "packing %s", sourceDir)
	}
	tarball := filepath.Join(projectDir, tarballFromOutput(out, m.TarballName()))
	n.logger.Debug().Str("tarball", tarball).Msg("Package packed")

	defer func() {
		if err := n.Fs.Remove(tarball); err != nil && !os.IsNotExist(err) {
			n.logger.Warn().Err(err).Str("tarball", tarball).Msg("Failed to remove tarball")
		}
	}()

	if _, err := n.Runner.Run(ctx, projectDir, n.Command, "install", tarball); err != nil {
		return errors.Wrapf(err, errors.ErrInstall, "installing %s", filepath.Base(tarball))
	}
	n.logger.Info().Str("package", m.Name).Str("project", projectDir).Msg("Package installed")
	return nil
}

// tarballFromOutput takes the tarball name from the last line `pack`
// printed, falling back to the name derived from the manifest.
func tarballFromOutput(out []byte, fallback string) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if strings.HasSuffix(last, ".tgz") && !strings.ContainsRune(last, filepath.Separator) {
		return last
	}
	return fallback
}

// CheckDestination verifies that an existing install is present at dest.
// It stands in for Install when installing is skipped.
func CheckDestination(fsys afero.Fs, dest string) error {
	info, err := fsys.Stat(dest)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInstall, "package is not installed at %s", dest)
	}
	if !info.IsDir() {
		return errors.Newf(errors.ErrInstall, "install destination %s is not a directory", dest)
	}
	return nil
}
