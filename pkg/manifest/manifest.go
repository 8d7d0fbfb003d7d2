// Package manifest reads the fields of a package.json that pkgsync needs.
package manifest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/pkgsync/pkg/errors"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
)

// FileName is the manifest file looked up in a package directory
const FileName = "package.json"

// Manifest holds the package identity
type Manifest struct {
	Name    string
	Version string
	// Files is the package's "files" allow list, empty when absent
	Files []string
}

// Read loads <dir>/package.json from fsys
func Read(fsys afero.Fs, dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrManifestNotFound,
				"directory %q does not contain a %q file", dir, FileName).
				WithDetail("path", path)
		}
		return nil, errors.Wrapf(err, errors.ErrManifestNotFound, "reading %s", path)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrManifestInvalid, "invalid manifest %s", path)
	}
	return m, nil
}

// Parse extracts the manifest fields from package.json content
func Parse(data []byte) (*Manifest, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New(errors.ErrManifestInvalid, "not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, errors.New(errors.ErrManifestInvalid, "top level value is not an object")
	}

	name := root.Get("name")
	if name.Type != gjson.String || strings.TrimSpace(name.String()) == "" {
		return nil, errors.New(errors.ErrManifestInvalid, "missing \"name\" field")
	}

	m := &Manifest{Name: strings.TrimSpace(name.String())}
	if version := root.Get("version"); version.Type == gjson.String {
		m.Version = strings.TrimSpace(version.String())
	}
	for _, f := range root.Get("files").Array() {
		if f.Type == gjson.String {
			m.Files = append(m.Files, f.String())
		}
	}
	return m, nil
}

// TarballName is the file name `npm pack` produces for this package:
// "@scope/name" becomes "scope-name-<version>.tgz".
func (m *Manifest) TarballName() string {
	name := strings.TrimPrefix(m.Name, "@")
	name = strings.Replace(name, "/", "-", 1)
	return name + "-" + m.Version + ".tgz"
}
