package artifact

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func makeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html":            "<html>landing</html>",
		"versions.json":         `{"versions":["1.4.0"]}`,
		"1.4.0/index.html":      "<html>docs</html>",
		"1.4.0/_static/app.css": "body{}",
	}
	for rel, content := range files {
		full := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	}
	return dir
}

func TestStoreRoundTripPreservesStructure(t *testing.T) {
	src := makeTree(t)
	store := NewStore(t.TempDir())

	path, err := store.Save("docs-concrete-core", "run-1", src)
	require.NoError(t, err)
	require.FileExists(t, path)

	dst := t.TempDir()
	require.NoError(t, store.Extract("docs-concrete-core", "run-1", dst))

	for _, rel := range []string{
		"index.html",
		"versions.json",
		"1.4.0/index.html",
		"1.4.0/_static/app.css",
	} {
		want, err := os.ReadFile(filepath.Join(src, rel))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(dst, rel))
		require.NoError(t, err, rel)
		require.Equal(t, want, got, rel)
	}
}

func TestExtractUnknownRun(t *testing.T) {
	store := NewStore(t.TempDir())
	require.Error(t, store.Extract("docs-concrete-core", "missing", t.TempDir()))
}

func TestSaveRequiresNameAndRunID(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Save("", "run-1", t.TempDir())
	require.Error(t, err)
	_, err = store.Save("docs-x", "", t.TempDir())
	require.Error(t, err)
}

func TestRemoveDropsArtifacts(t *testing.T) {
	src := makeTree(t)
	store := NewStore(t.TempDir())

	_, err := store.Save("docs-concrete-core", "run-1", src)
	require.NoError(t, err)
	require.NoError(t, store.Remove("run-1"))
	require.Error(t, store.Extract("docs-concrete-core", "run-1", t.TempDir()))
}

func TestUnpackRejectsPathTraversal(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "../escape.txt",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     4,
	}))
	_, err := tw.Write([]byte("evil"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	require.Error(t, Unpack(&buf, t.TempDir()))
}

func TestUnpackAllowsDoubleDotsInFilenames(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	content := []byte("<html>notes</html>")
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "release..notes.html",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len(content)),
	}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	dst := t.TempDir()
	require.NoError(t, Unpack(&buf, dst))

	got, err := os.ReadFile(filepath.Join(dst, "release..notes.html"))
	require.NoError(t, err)
	require.Equal(t, content, got)
}
