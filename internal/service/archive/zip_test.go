package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/dvelarde/yt-playlist-api-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()

	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	contents := make(map[string]string, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		contents[f.Name] = string(data)
	}
	return contents
}

func TestBuildZip(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "Song One.mp3"), "audio one")
	writeFile(t, filepath.Join(src, "Song Two.mp3"), "audio two")

	out := filepath.Join(t.TempDir(), "batch.zip")
	require.NoError(t, BuildZip(src, out))

	contents := readZip(t, out)
	assert.Equal(t, map[string]string{
		"Song One.mp3": "audio one",
		"Song Two.mp3": "audio two",
	}, contents)
}

func TestBuildZipNestedDirsUseRelativeSlashNames(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.mp3"), "a")
	writeFile(t, filepath.Join(src, "sub", "b.mp3"), "b")

	out := filepath.Join(t.TempDir(), "batch.zip")
	require.NoError(t, BuildZip(src, out))

	contents := readZip(t, out)
	names := make([]string, 0, len(contents))
	for name := range contents {
		names = append(names, name)
	}
	sort.Strings(names)

	assert.Equal(t, []string{"a.mp3", "sub/b.mp3"}, names)
}

func TestBuildZipEmptyDir(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "batch.zip")

	require.NoError(t, BuildZip(src, out))
	assert.Empty(t, readZip(t, out))
}

func TestBuildZipMissingSource(t *testing.T) {
	out := filepath.Join(t.TempDir(), "batch.zip")

	err := BuildZip(filepath.Join(t.TempDir(), "does-not-exist"), out)
	require.ErrorIs(t, err, domain.ErrArchive)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no archive should be left behind")
}
