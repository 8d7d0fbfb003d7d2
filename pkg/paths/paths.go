package paths

import (
	"os"
	"path/filepath"

	"github.com/arthur-debert/pkgsync/pkg/errors"
)

const (
	// NodeModulesDir is where package managers place installed packages
	NodeModulesDir = "node_modules"

	// EnvHome is the standard home directory variable
	EnvHome = "HOME"
)

// Mapper translates source tree paths into destination tree paths
type Mapper struct {
	sourceRoot string
	destRoot   string
}

// NewMapper creates a Mapper. Both roots are made absolute and cleaned.
func NewMapper(sourceRoot, destRoot string) (*Mapper, error) {
	src, err := filepath.Abs(sourceRoot)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidInput, "invalid source root %q", sourceRoot)
	}
	dst, err := filepath.Abs(destRoot)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidInput, "invalid destination root %q", destRoot)
	}
	return &Mapper{sourceRoot: src, destRoot: dst}, nil
}

// SourceRoot returns the absolute source root
func (m *Mapper) SourceRoot() string { return m.sourceRoot }

// DestRoot returns the absolute destination root
func (m *Mapper) DestRoot() string { return m.destRoot }

// Relative returns sourcePath relative to the source root
func (m *Mapper) Relative(sourcePath string) string {
	rel, err := filepath.Rel(m.sourceRoot, sourcePath)
	if err != nil {
		// Only happens for a relative sourcePath, which the watchers never emit
		return filepath.Clean(sourcePath)
	}
	return rel
}

// MapToDestination re-roots sourcePath onto the destination root
func (m *Mapper) MapToDestination(sourcePath string) string {
	return filepath.Join(m.destRoot, m.Relative(sourcePath))
}

// IsTopLevel reports whether path is a direct child of the source root
func (m *Mapper) IsTopLevel(path string) bool {
	return filepath.Dir(filepath.Clean(path)) == m.sourceRoot
}

// InstallDestination returns where packageName is installed for projectDir.
// Scoped names like @scope/name become nested directories.
func InstallDestination(projectDir, packageName string) string {
	return filepath.Join(projectDir, NodeModulesDir, filepath.FromSlash(packageName))
}

// ExpandHome expands a leading ~ to the user's home directory.
// Paths that cannot be expanded are returned unchanged.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if len(path) > 1 && path[1] != '/' && path[1] != filepath.Separator {
		// ~user is not supported
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		homeDir = os.Getenv(EnvHome)
		if homeDir == "" {
			return path
		}
	}
	if len(path) == 1 {
		return homeDir
	}
	return filepath.Join(homeDir, path[2:])
}

// Resolve expands ~ and makes path absolute against base
func Resolve(base, path string) string {
	path = ExpandHome(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}
