package ignore

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/arthur-debert/pkgsync/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "plain names",
			input: "build\ncoverage\n",
			want:  []string{"build", "coverage"},
		},
		{
			name:  "trailing separator and wildcard stripped",
			input: "build/\ndist/*\n",
			want:  []string{"build", "dist"},
		},
		{
			name:  "nested entries dropped",
			input: "lib/tmp\nsrc/*.map\ntest/fixtures/\n",
			want:  nil,
		},
		{
			name:  "blank lines comments and negations skipped",
			input: "\n# generated\n!keep\n   \nnode_modules\n",
			want:  []string{"node_modules"},
		},
		{
			name:  "root anchored entry",
			input: "/build\n",
			want:  []string{"build"},
		},
		{
			name:  "duplicates collapsed",
			input: "build\nbuild/\n",
			want:  []string{"build"},
		},
		{
			name:  "crlf line endings",
			input: "build\r\ncoverage\r\n",
			want:  []string{"build", "coverage"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTopLevel([]byte(tt.input)))
		})
	}
}

func TestResolve_PrefersNpmignore(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/.npmignore", []byte("build/\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/src/.gitignore", []byte("coverage\n"), 0644))
	require.NoError(t, fs.MkdirAll("/src/build", 0755))
	require.NoError(t, fs.MkdirAll("/src/coverage", 0755))

	set, err := Resolve(context.Background(), fs, "/src", nil)
	require.NoError(t, err)

	assert.Equal(t, "/src/.npmignore", set.Source())
	assert.Equal(t, []string{"/src/build"}, set.Paths())
	assert.True(t, set.Contains("/src/build"))
	assert.True(t, set.Contains("/src/build/"))
	assert.False(t, set.Contains("/src/coverage"))
}

func TestResolve_FallsBackToGitignore(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/.gitignore", []byte("coverage\n*.log\nlib/tmp\n"), 0644))
	require.NoError(t, fs.MkdirAll("/src/coverage", 0755))
	require.NoError(t, fs.MkdirAll("/src/lib/tmp", 0755))

	set, err := Resolve(context.Background(), fs, "/src", nil)
	require.NoError(t, err)

	assert.Equal(t, "/src/.gitignore", set.Source())
	assert.Equal(t, []string{"/src/coverage"}, set.Paths())
	require.Len(t, set.Entries(), 1)
	assert.True(t, set.Entries()[0].Info.IsDir())
}

func TestResolve_DropsMissingEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/.npmignore", []byte("build\nnot-there\nnotes.txt\n"), 0644))
	require.NoError(t, fs.MkdirAll("/src/build", 0755))
	require.NoError(t, afero.WriteFile(fs, "/src/notes.txt", []byte("n"), 0644))

	set, err := Resolve(context.Background(), fs, "/src", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"/src/build", "/src/notes.txt"}, set.Paths())
	assert.Equal(t, 2, set.Len())
}

func TestResolve_LongLineDoesNotHideLaterEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "# " + strings.Repeat("x", 70*1024) + "\nbuild/\r\n"
	require.NoError(t, afero.WriteFile(fs, "/src/.npmignore", []byte(content), 0644))
	require.NoError(t, fs.MkdirAll("/src/build", 0755))

	set, err := Resolve(context.Background(), fs, "/src", nil)
	require.NoError(t, err)
	assert.True(t, set.Contains("/src/build"))
	assert.Equal(t, []string{"/src/build"}, set.Paths())
}

func TestResolve_NoIgnoreFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/src", 0755))

	set, err := Resolve(context.Background(), fs, "/src", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
	assert.Empty(t, set.Source())
}

type unreadableFs struct {
	afero.Fs
}

func (u unreadableFs) Open(name string) (afero.File, error) {
	return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
}

func (u unreadableFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
}

func TestResolve_UnreadableIgnoreFileIsFatal(t *testing.T) {
	fs := unreadableFs{Fs: afero.NewMemMapFs()}

	_, err := Resolve(context.Background(), fs, "/src", nil)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrIgnoreRead))
}

func TestResolve_CustomFileNames(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/.syncignore", []byte("fixtures\n"), 0644))
	require.NoError(t, fs.MkdirAll("/src/fixtures", 0755))

	set, err := Resolve(context.Background(), fs, "/src", []string{".syncignore"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/src/fixtures"}, set.Paths())
}

func TestNilSetIsEmpty(t *testing.T) {
	var s *Set
	assert.False(t, s.Contains("/src/a"))
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Paths())
}
